/*
Package rpc provides the client side of the supervisor RPC protocol. A script running under the supervisor inherits a connected Unix domain socket (conventionally fd 3) and uses it to call methods such as "Supervisor.Spawn" or "Messaging.MessageChannel".

Requests and responses are single JSON objects, one per line:

	client -> peer: {"id": 0, "method": "Supervisor.Spawn", "params": [{"owner_name": "alice", "name": "job1"}]}
	peer -> client: {"id": 0, "result": {"handle": "abc123"}, "error": null}

The params array always holds exactly one object of named arguments. There is no positional calling convention.

The protocol proceeds as follows:

1. The client writes a request with the next ID. IDs start at 0 and increase by one per call.
2. If the call hands descriptors to the peer, the client follows the request with a single sendmsg(2) carrying one marker byte and an SCM_RIGHTS control message. The peer reads the request line, sees that the method takes descriptors, and performs its own recvmsg(2).
3. The client reads response lines until one carries the ID it is waiting for. Lower IDs are stale replies to earlier calls and are dropped. A higher ID means the client lost its place in the stream, and the session is unusable from then on.

A Session is strictly one call at a time: no pipelining, no background reader. Callers that share a Session across goroutines must serialize calls themselves. Overlapping calls are detected and rejected with ErrCallInProgress, but they are not queued.
*/
package rpc
