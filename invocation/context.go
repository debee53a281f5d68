// Package invocation decodes the context a script is started with: who invoked it, from where, and with which prefixes.
package invocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultEnv is the environment variable the supervisor sets to the JSON context.
const DefaultEnv = "K4_CONTEXT"

var ErrNoContext = errors.New("no invocation context")

// Context describes one script invocation.
type Context struct {
	BridgeName  string `json:"bridgeName"`
	CommandName string `json:"commandName"`

	UserID         string `json:"userId"`
	ChannelID      string `json:"channelId"`
	GroupID        string `json:"groupId"`
	NetworkID      string `json:"networkId"`
	InputMessageID string `json:"inputMessageId"`
	Mention        string `json:"mention"`

	CurrencyName        string `json:"currencyName"`
	ScriptCommandPrefix string `json:"scriptCommandPrefix"`
	BankCommandPrefix   string `json:"bankCommandPrefix"`

	// Raw holds every field of the context as sent, including ones this package does not know about.
	Raw map[string]json.RawMessage `json:"-"`
}

// Get returns the raw value of key.
func (c *Context) Get(key string) (json.RawMessage, bool) {
	v, ok := c.Raw[key]
	return v, ok
}

// Parse decodes a context from its JSON encoding.
func Parse(b []byte) (*Context, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decoding invocation context: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decoding invocation context: %w", ErrNoContext)
	}
	c := &Context{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decoding invocation context: %w", err)
	}
	c.Raw = raw
	return c, nil
}

// Read decodes a single JSON object from r.
func Read(r io.Reader) (*Context, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading invocation context: %w", ErrNoContext)
		}
		return nil, fmt.Errorf("reading invocation context: %w", err)
	}
	return Parse(raw)
}

// FromEnv reads the context from the named environment variable, or DefaultEnv if name is empty.
func FromEnv(name string) (*Context, error) {
	if name == "" {
		name = DefaultEnv
	}
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil, fmt.Errorf("%s is not set: %w", name, ErrNoContext)
	}
	return Parse([]byte(v))
}
