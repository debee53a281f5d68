package supervisor

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Handle is the peer's opaque token for a spawned process.
// It is sent back exactly as received, whatever its JSON type.
type Handle struct {
	raw json.RawMessage
}

// StringHandle builds a Handle from a string token.
func StringHandle(s string) Handle {
	b, _ := json.Marshal(s)
	return Handle{raw: b}
}

func (h Handle) IsZero() bool {
	return len(h.raw) == 0 || string(h.raw) == "null"
}

// String returns the token, unquoted if it is a JSON string.
func (h Handle) String() string {
	var s string
	if err := json.Unmarshal(h.raw, &s); err == nil {
		return s
	}
	return string(h.raw)
}

func (h Handle) MarshalJSON() ([]byte, error) {
	if h.IsZero() {
		return nil, errors.New("zero handle")
	}
	return h.raw, nil
}

func (h *Handle) UnmarshalJSON(b []byte) error {
	h.raw = append(json.RawMessage(nil), bytes.TrimSpace(b)...)
	return nil
}
