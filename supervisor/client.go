package supervisor

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/guseggert/k4/rpc"
	"go.uber.org/zap"
)

const namespace = "Supervisor"

type Client struct {
	Logger *zap.SugaredLogger
	stub   rpc.Stub
}

func New(s *rpc.Session, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		Logger: log.Named("supervisor_client"),
		stub:   s.Namespace(namespace),
	}
}

// Spawn starts a script and returns a handle to it.
// The three descriptors are sent right after the request, as the peer expects.
func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (*Child, error) {
	if req.Stdin == nil || req.Stdout == nil || req.Stderr == nil {
		return nil, errors.New("spawn requires stdin, stdout and stderr")
	}

	var resp spawnResponse
	err := c.stub.CallInto(ctx, "Spawn",
		rpc.Args{"owner_name": req.OwnerName, "name": req.Name},
		&resp,
		rpc.WithDescriptors(req.Stdin, req.Stdout, req.Stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("spawning %s/%s: %w", req.OwnerName, req.Name, err)
	}
	if resp.Handle.IsZero() {
		return nil, fmt.Errorf("spawning %s/%s: no handle in response", req.OwnerName, req.Name)
	}
	c.Logger.Debugw("spawned", "Owner", req.OwnerName, "Name", req.Name, "Handle", resp.Handle.String())
	return &Child{client: c, handle: resp.Handle}, nil
}

// Wait blocks until the process behind h exits.
func (c *Client) Wait(ctx context.Context, h Handle) (*WaitResult, error) {
	var res WaitResult
	if err := c.stub.CallInto(ctx, "Wait", rpc.Args{"handle": h}, &res); err != nil {
		return nil, fmt.Errorf("waiting on %s: %w", h, err)
	}
	c.Logger.Debugw("wait finished", "Handle", h.String(), "WaitStatus", res.WaitStatus)
	return &res, nil
}

// Signal sends sig to the process behind h.
func (c *Client) Signal(ctx context.Context, h Handle, sig syscall.Signal) error {
	if err := c.stub.CallInto(ctx, "Signal", rpc.Args{"handle": h, "signal": int(sig)}, nil); err != nil {
		return fmt.Errorf("signaling %s with %s: %w", h, sig, err)
	}
	return nil
}
