package supervisor

import (
	"context"
	"syscall"
)

// Child is a process spawned by the supervisor.
// Every method is a fresh round trip; nothing is cached. The supervisor owns the process,
// so dropping a Child does not stop or reap it.
type Child struct {
	client *Client
	handle Handle
}

// NewChild rebuilds a Child from a handle obtained elsewhere.
func NewChild(c *Client, h Handle) *Child {
	return &Child{client: c, handle: h}
}

func (c *Child) Handle() Handle { return c.handle }

func (c *Child) Wait(ctx context.Context) (*WaitResult, error) {
	return c.client.Wait(ctx, c.handle)
}

func (c *Child) Signal(ctx context.Context, sig syscall.Signal) error {
	return c.client.Signal(ctx, c.handle, sig)
}
