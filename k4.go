// Package k4 is the client a script uses to talk to the supervisor that started it.
//
// A script inherits a Unix domain socket on fd 3 and its invocation context in K4_CONTEXT.
// NewClient adopts both:
//
//	client, err := k4.NewClient()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//	err = client.Messaging.MessageChannel(ctx, services.Message{ID: client.Context.ChannelID, Content: "hi"})
//
// A Client, like the rpc.Session under it, handles one call at a time.
package k4

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/guseggert/k4/invocation"
	"github.com/guseggert/k4/rpc"
	"github.com/guseggert/k4/services"
	"github.com/guseggert/k4/supervisor"
	"go.uber.org/zap"
)

type Client struct {
	Context *invocation.Context
	Session *rpc.Session

	Supervisor  *supervisor.Client
	Output      *services.Output
	Messaging   *services.Messaging
	NetworkInfo *services.NetworkInfo
	Stats       *services.Stats
	Deputy      *services.Deputy
	Money       *services.Money
	Accounts    *services.Accounts
}

type config struct {
	fd            int
	contextEnv    string
	contextReader io.Reader
	logger        *zap.Logger
}

type Option func(c *config)

// WithFD sets the descriptor the supervisor socket is inherited on.
func WithFD(fd int) Option {
	return func(c *config) {
		c.fd = fd
	}
}

// WithContextEnv sets the environment variable the invocation context is read from.
func WithContextEnv(name string) Option {
	return func(c *config) {
		c.contextEnv = name
	}
}

// WithContextReader reads the invocation context from r instead of the environment.
func WithContextReader(r io.Reader) Option {
	return func(c *config) {
		c.contextReader = r
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// NewClient reads the invocation context and connects to the inherited supervisor socket.
func NewClient(opts ...Option) (*Client, error) {
	cfg := &config{
		fd:         rpc.DefaultFD,
		contextEnv: invocation.DefaultEnv,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	var (
		invCtx *invocation.Context
		err    error
	)
	if cfg.contextReader != nil {
		invCtx, err = invocation.Read(cfg.contextReader)
	} else {
		invCtx, err = invocation.FromEnv(cfg.contextEnv)
	}
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}

	t, err := rpc.FromFD(cfg.fd)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}
	cfg.logger.Sugar().Debugw("connected to supervisor", "FD", cfg.fd, "Command", invCtx.CommandName)

	return New(rpc.NewSession(t, rpc.WithLogger(cfg.logger)), invCtx, cfg.logger), nil
}

// New builds a Client over an existing session. log may be nil.
func New(s *rpc.Session, invCtx *invocation.Context, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		Context:     invCtx,
		Session:     s,
		Supervisor:  supervisor.New(s, log.Sugar()),
		Output:      services.NewOutput(s),
		Messaging:   services.NewMessaging(s),
		NetworkInfo: services.NewNetworkInfo(s),
		Stats:       services.NewStats(s),
		Deputy:      services.NewDeputy(s),
		Money:       services.NewMoney(s),
		Accounts:    services.NewAccounts(s),
	}
}

// Namespace returns a stub for a namespace this package has no wrapper for.
func (c *Client) Namespace(name string) rpc.Stub {
	return c.Session.Namespace(name)
}

// Call invokes a fully qualified method, such as "Output.SetFormat".
func (c *Client) Call(ctx context.Context, method string, args rpc.Args, opts ...rpc.CallOption) (json.RawMessage, error) {
	return c.Session.Call(ctx, method, args, opts...)
}

func (c *Client) Close() error {
	return c.Session.Close()
}
