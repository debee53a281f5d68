package rpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultFD is the descriptor the supervisor's socket is inherited on.
const DefaultFD = 3

// marker is the payload byte that carries the control message; ancillary data sent without any payload is not reliably delivered.
var marker = []byte{1}

// Transport is the byte stream a Session talks over, plus the ability to pass descriptors alongside it.
type Transport interface {
	io.Reader
	io.Writer
	// SendRights sends fds as an SCM_RIGHTS control message attached to a one-byte payload.
	SendRights(fds []int) error
}

// deadliner is implemented by transports whose blocked reads can be interrupted.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// UnixTransport is a Transport over a connected Unix domain stream socket.
type UnixTransport struct {
	*net.UnixConn
}

func NewUnixTransport(conn *net.UnixConn) *UnixTransport {
	return &UnixTransport{UnixConn: conn}
}

// FromFD adopts an inherited socket descriptor.
// The returned transport owns a duplicate of fd; fd itself is closed.
func FromFD(fd int) (*UnixTransport, error) {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("rpc socket fd %d", fd))
	if f == nil {
		return nil, fmt.Errorf("invalid descriptor %d", fd)
	}
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("adopting fd %d: %w", fd, err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("fd %d is a %T, not a Unix socket", fd, conn)
	}
	return NewUnixTransport(unixConn), nil
}

func (t *UnixTransport) SendRights(fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	n, oobn, err := t.WriteMsgUnix(marker, oob, nil)
	if err != nil {
		return err
	}
	if n != len(marker) || oobn != len(oob) {
		return fmt.Errorf("short ancillary write: n = %d, oobn = %d (want %d, %d)", n, oobn, len(marker), len(oob))
	}
	return nil
}

// closeTransport closes t if it can be closed.
func closeTransport(t Transport) error {
	c, ok := t.(io.Closer)
	if !ok {
		return nil
	}
	err := c.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
