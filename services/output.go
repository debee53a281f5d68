package services

import (
	"context"

	"github.com/guseggert/k4/rpc"
)

// Output controls how the script's stdout is delivered.
type Output struct {
	stub rpc.Stub
}

func NewOutput(s *rpc.Session) *Output {
	return &Output{stub: s.Namespace("Output")}
}

// SetFormat sets the output format, e.g. "text", "code" or "raw".
func (o *Output) SetFormat(ctx context.Context, format string) error {
	return o.stub.CallInto(ctx, "SetFormat", rpc.Args{"format": format}, nil)
}

// SetPrivate delivers output to the invoking user only.
func (o *Output) SetPrivate(ctx context.Context, private bool) error {
	return o.stub.CallInto(ctx, "SetPrivate", rpc.Args{"private": private}, nil)
}
