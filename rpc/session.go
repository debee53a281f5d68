package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session is one conversation with the peer over a single Transport.
// It is not goroutine-safe: calls must be serialized by the caller.
type Session struct {
	log *zap.SugaredLogger
	t   Transport
	dec *Decoder

	// nextID is the ID of the next request. It is only touched by the call path.
	nextID uint64
	busy   atomic.Bool
	broken error
}

type Option func(s *Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.log = l.Named("rpc_session").Sugar()
	}
}

// WithFirstID sets the ID of the first request.
func WithFirstID(id uint64) Option {
	return func(s *Session) {
		s.nextID = id
	}
}

// NewSession starts a session over t. The session owns t and closes it on Close.
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		log: zap.NewNop().Sugar(),
		t:   t,
		dec: NewDecoder(t),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type callConfig struct {
	afterSend   []func() error
	descriptors []Descriptor
	sendRights  bool
}

// CallOption customizes a single call.
type CallOption func(c *callConfig)

// AfterSend runs f synchronously once the request bytes are written and before the call waits for its response.
// An error from f fails the call and breaks the session, since the peer may be left expecting more data.
func AfterSend(f func() error) CallOption {
	return func(c *callConfig) {
		c.afterSend = append(c.afterSend, f)
	}
}

// NextID returns the ID the next call will be sent with.
func (s *Session) NextID() uint64 {
	return s.nextID
}

// Err returns the error that broke the session, or nil if it is usable.
func (s *Session) Err() error {
	return s.broken
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	if s.broken == nil {
		s.broken = errors.New("session closed")
	}
	return closeTransport(s.t)
}

// Call invokes method with args and blocks until its response arrives.
// It returns the raw result, a *ServerError if the peer reported one, or a fatal error that breaks the session.
//
// Once the request is written, the call only returns early on ctx cancellation if the transport supports read deadlines,
// and doing so breaks the session: the abandoned ID is still owed by the peer.
func (s *Session) Call(ctx context.Context, method string, args Args, opts ...CallOption) (json.RawMessage, error) {
	var cfg callConfig
	for _, o := range opts {
		o(&cfg)
	}

	if s.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionBroken, s.broken)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrCallInProgress
	}
	defer s.busy.Store(false)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Everything that can be checked is checked before the first byte goes out,
	// so these failures leave the stream and the ID counter untouched.
	var fds []int
	if cfg.sendRights {
		var err error
		fds, err = ResolveDescriptors(cfg.descriptors)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
	}
	id := s.nextID
	req, err := EncodeRequest(id, method, args)
	if err != nil {
		return nil, err
	}

	s.log.Debugw("sending request", "ID", id, "Method", method)
	if _, err := s.t.Write(req); err != nil {
		return nil, s.fail(&TransportError{Op: "writing request", Err: err})
	}
	if cfg.sendRights {
		s.log.Debugw("sending descriptors", "ID", id, "FDs", fds)
		if err := sendDescriptors(s.t, fds, cfg.descriptors); err != nil {
			return nil, s.fail(&TransportError{Op: "sending descriptors", Err: err})
		}
	}
	for _, f := range cfg.afterSend {
		if err := f(); err != nil {
			return nil, s.fail(fmt.Errorf("after send: %w", err))
		}
	}
	s.nextID++

	stop := s.watch(ctx)
	resp, err := s.awaitResponse(id)
	stop()
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			serverErr.Method = method
			return nil, serverErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("call %d abandoned: %w", id, ctxErr)
		}
		return nil, s.fail(err)
	}
	return resp, nil
}

// CallInto is like Call but decodes the result into out. A nil out discards the result.
func (s *Session) CallInto(ctx context.Context, method string, args Args, out any, opts ...CallOption) error {
	result, err := s.Call(ctx, method, args, opts...)
	if err != nil {
		return err
	}
	if out == nil || isNull(result) {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

// awaitResponse reads responses until the one for expected arrives.
func (s *Session) awaitResponse(expected uint64) (json.RawMessage, error) {
	for {
		resp, err := s.dec.ReadResponse()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				return nil, err
			}
			return nil, &TransportError{Op: "reading response", Err: err}
		}
		switch {
		case resp.ID < expected:
			s.log.Debugw("discarding stale response", "ID", resp.ID, "Expected", expected)
			continue
		case resp.ID > expected:
			return nil, &MismatchedIDError{Expected: expected, Got: resp.ID}
		}
		if resp.Failed() {
			return nil, &ServerError{Payload: resp.Error}
		}
		return resp.Result, nil
	}
}

// watch interrupts a blocked read when ctx is done, if the transport allows it.
// The returned func stops watching and must be called before the next read.
func (s *Session) watch(ctx context.Context) func() {
	d, ok := s.t.(deadliner)
	if !ok || ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			if err := d.SetReadDeadline(time.Now()); err != nil {
				s.log.Debugf("error interrupting read: %s", err)
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		if ctx.Err() == nil {
			return
		}
		if err := d.SetReadDeadline(time.Time{}); err != nil {
			s.log.Debugf("error clearing read deadline: %s", err)
		}
	}
}

func (s *Session) fail(err error) error {
	s.broken = err
	s.log.Debugw("session broken", "Error", err)
	return err
}
