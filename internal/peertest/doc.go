/*
Package peertest provides a scripted supervisor peer for tests.

A Peer sits on one end of a socketpair(2) and speaks the peer side of the protocol in package rpc: it reads request lines one byte at a time (so it never consumes the marker byte that carries descriptors), receives SCM_RIGHTS for methods registered with HandleRights, and writes newline-terminated responses.

ProcessTable implements Supervisor.Spawn, Supervisor.Wait and Supervisor.Signal on top of a Peer by running a real command with the received descriptors as its stdio.
*/
package peertest
