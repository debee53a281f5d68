package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guseggert/k4/rpc"
	"github.com/guseggert/k4/supervisor"
)

// parseValue decodes s as JSON when it is valid JSON, and keeps it as a string otherwise.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseArgs turns key=value pairs into call arguments.
func parseArgs(pairs []string) (rpc.Args, error) {
	args := rpc.Args{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not of the form key=value", p)
		}
		if _, dup := args[k]; dup {
			return nil, fmt.Errorf("argument %q given more than once", k)
		}
		args[k] = parseValue(v)
	}
	return args, nil
}

func parseHandle(s string) (supervisor.Handle, error) {
	if s == "" {
		return supervisor.Handle{}, fmt.Errorf("empty handle")
	}
	if !json.Valid([]byte(s)) {
		return supervisor.StringHandle(s), nil
	}
	var h supervisor.Handle
	if err := h.UnmarshalJSON([]byte(s)); err != nil {
		return supervisor.Handle{}, err
	}
	if h.IsZero() {
		return supervisor.Handle{}, fmt.Errorf("null handle")
	}
	return h, nil
}
