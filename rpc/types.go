package rpc

import "encoding/json"

// Args is the single mapping of named arguments sent as the only element of a request's params.
type Args map[string]any

// Request is a request message.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []Args `json:"params"`
}

// Response is a response message.
// Error is JSON null (or absent from Result-only replies) when the call succeeded, in which case Result holds the return value.
// Both fields are kept as raw JSON so callers narrow them explicitly.
type Response struct {
	ID     uint64
	Result json.RawMessage
	Error  json.RawMessage
}

// Failed reports whether the peer reported an application error.
func (r *Response) Failed() bool {
	return !isNull(r.Error)
}

var null = json.RawMessage("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
