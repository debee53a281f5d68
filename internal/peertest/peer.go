package peertest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/guseggert/k4/rpc"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

// Received is a request as seen by the peer.
type Received struct {
	ID     uint64
	Method string
	Args   rpc.Args
	// Files holds descriptors received with the request. The handler owns them.
	Files []*os.File
	// Raw is the request line, without the trailing newline.
	Raw []byte
}

// Handler answers a request with a result, or with an error that is sent as the response's error field.
// Returning a *ErrorValue sends a structured error.
type Handler func(req *Received) (any, error)

// RawHandler answers a request with arbitrary lines, written in order.
type RawHandler func(req *Received) []string

// ErrorValue is a structured error payload.
type ErrorValue struct {
	Value any
}

func (e *ErrorValue) Error() string { return fmt.Sprintf("%v", e.Value) }

type route struct {
	handler    Handler
	rawHandler RawHandler
	rights     bool
}

// Peer is a scripted supervisor.
type Peer struct {
	Log  *zap.SugaredLogger
	conn *net.UnixConn

	mut      sync.Mutex
	routes   map[string]route
	received []*Received
}

// New connects a Peer to a client transport over a fresh socketpair.
// Both ends are closed when the test finishes.
func New(t testing.TB) (*Peer, *rpc.UnixTransport) {
	peerConn, clientConn, err := Socketpair()
	if err != nil {
		t.Fatalf("creating socketpair: %s", err)
	}
	t.Cleanup(func() {
		peerConn.Close()
		clientConn.Close()
	})
	return NewPeer(peerConn, zaptest.NewLogger(t).Sugar()), rpc.NewUnixTransport(clientConn)
}

// NewPeer builds a Peer on an existing connection.
func NewPeer(conn *net.UnixConn, log *zap.SugaredLogger) *Peer {
	return &Peer{
		Log:    log.Named("peer"),
		conn:   conn,
		routes: map[string]route{},
	}
}

// Socketpair returns two connected Unix stream sockets.
func Socketpair() (*net.UnixConn, *net.UnixConn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	a, err := fdConn(fds[0], "peer")
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := fdConn(fds[1], "client")
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func fdConn(fd int, name string) (*net.UnixConn, error) {
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wrapping %s socket: %w", name, err)
	}
	return conn.(*net.UnixConn), nil
}

// Handle registers h for method.
func (p *Peer) Handle(method string, h Handler) {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.routes[method] = route{handler: h}
}

// HandleRights registers h for a method whose requests are followed by descriptors.
func (p *Peer) HandleRights(method string, h Handler) {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.routes[method] = route{handler: h, rights: true}
}

// HandleRaw registers h for method. Its lines are written verbatim.
func (p *Peer) HandleRaw(method string, h RawHandler) {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.routes[method] = route{rawHandler: h}
}

// Received returns every request read so far.
func (p *Peer) Received() []*Received {
	p.mut.Lock()
	defer p.mut.Unlock()
	return append([]*Received(nil), p.received...)
}

// WriteLine writes one raw line to the client.
func (p *Peer) WriteLine(line string) error {
	_, err := p.conn.Write([]byte(line + "\n"))
	return err
}

// Close closes the peer's end, which the client sees as EOF.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Serve answers requests until the client closes its end. Unknown methods get an error response.
func (p *Peer) Serve() error {
	for {
		err := p.ServeOne()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ServeOne reads and answers a single request.
func (p *Peer) ServeOne() error {
	line, err := p.readLine()
	if err != nil {
		return err
	}

	var req rpc.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return fmt.Errorf("decoding request %q: %w", line, err)
	}
	if len(req.Params) != 1 {
		return fmt.Errorf("request %d has %d params, want 1", req.ID, len(req.Params))
	}
	recv := &Received{ID: req.ID, Method: req.Method, Args: req.Params[0], Raw: line}
	p.Log.Debugw("got request", "ID", req.ID, "Method", req.Method)

	p.mut.Lock()
	rt, ok := p.routes[req.Method]
	p.received = append(p.received, recv)
	p.mut.Unlock()

	if rt.rights {
		files, err := p.recvFiles()
		if err != nil {
			return fmt.Errorf("receiving descriptors for %s: %w", req.Method, err)
		}
		recv.Files = files
	}

	switch {
	case !ok:
		return p.reply(req.ID, nil, fmt.Errorf("rpc: can't find service %s", req.Method))
	case rt.rawHandler != nil:
		for _, l := range rt.rawHandler(recv) {
			if err := p.WriteLine(l); err != nil {
				return err
			}
		}
		return nil
	default:
		result, err := rt.handler(recv)
		return p.reply(req.ID, result, err)
	}
}

func (p *Peer) reply(id uint64, result any, err error) error {
	resp := struct {
		ID     uint64 `json:"id"`
		Result any    `json:"result"`
		Error  any    `json:"error"`
	}{ID: id}
	var errValue *ErrorValue
	switch {
	case errors.As(err, &errValue):
		resp.Error = errValue.Value
	case err != nil:
		resp.Error = err.Error()
	default:
		resp.Result = result
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response %d: %w", id, err)
	}
	return p.WriteLine(string(b))
}

// readLine reads up to and including '\n' one byte at a time, so no bytes past the request are consumed.
func (p *Peer) readLine() ([]byte, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)
	for {
		n, err := p.conn.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				return buf.Bytes(), nil
			}
			buf.WriteByte(b[0])
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

func (p *Peer) recvFiles() ([]*os.File, error) {
	dummy := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(rpc.MaxDescriptors*4))
	n, oobn, _, _, err := p.conn.ReadMsgUnix(dummy, oob)
	if err != nil {
		return nil, err
	}
	if n != len(dummy) {
		return nil, fmt.Errorf("incorrect number of bytes read: n = %d", n)
	}
	if oobn == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if len(scms) != 1 {
		return nil, fmt.Errorf("received %d socket control messages, want 1", len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, err
	}
	files := make([]*os.File, len(fds))
	for i, fd := range fds {
		files[i] = os.NewFile(uintptr(fd), fmt.Sprintf("received fd %d", fd))
	}
	return files, nil
}
