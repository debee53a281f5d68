/*
Package services wraps the non-supervisor namespaces a script can call: Output, Messaging, NetworkInfo, Stats, Deputy, Money and Accounts.

Which namespaces are reachable depends on what the supervisor granted the script; calling one that was not granted fails with an *rpc.ServerError. Argument names are the peer's.
*/
package services
