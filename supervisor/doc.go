// Package supervisor wraps the "Supervisor" namespace: spawning scripts with caller-supplied stdio, and waiting on or signaling them through the handle the peer returns.
package supervisor
