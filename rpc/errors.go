package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClient matches every error the client raises about the protocol state itself, as opposed to errors reported by the peer.
	ErrClient = errors.New("rpc client error")

	// ErrSessionBroken is returned by every call made after a fatal error.
	// The wrapped cause is the error that broke the session.
	ErrSessionBroken = errors.New("rpc session is broken")

	// ErrCallInProgress is returned when a call is issued while another is still outstanding on the same session.
	ErrCallInProgress = errors.New("rpc call already in progress")

	// ErrTooManyDescriptors is returned when a call carries more than MaxDescriptors descriptors.
	ErrTooManyDescriptors = fmt.Errorf("more than %d descriptors", MaxDescriptors)
	// ErrNilDescriptor is returned for a nil entry in WithDescriptors.
	ErrNilDescriptor = errors.New("nil descriptor")
	// ErrInvalidDescriptor is returned for a descriptor that resolves to a negative number, such as a closed *os.File.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// MismatchedIDError means a response arrived for a request that has not been sent yet.
// The client's view of the stream is lost and the session cannot recover.
type MismatchedIDError struct {
	Expected uint64
	Got      uint64
}

func (e *MismatchedIDError) Error() string {
	return fmt.Sprintf("mismatched response id: expected %d, got %d", e.Expected, e.Got)
}

func (e *MismatchedIDError) Is(target error) bool { return target == ErrClient }

// ServerError carries an application error reported by the peer.
// Payload is the peer's error value verbatim, usually a JSON string.
type ServerError struct {
	Method  string
	Payload json.RawMessage
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error: %s", e.Method, e.Message())
}

// Message returns the error payload as text: string payloads are unquoted, anything else is compact JSON.
func (e *ServerError) Message() string {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, e.Payload); err != nil {
		return string(e.Payload)
	}
	return buf.String()
}

// Decode decodes a structured error payload into v.
func (e *ServerError) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// TransportError is an I/O failure on the session's socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a response line that could not be decoded.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response %q: %s", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
