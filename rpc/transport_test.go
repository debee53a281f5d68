package rpc_test

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/guseggert/k4/internal/peertest"
	"github.com/guseggert/k4/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func TestUnixTransportSendsDescriptors(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr)

	peer.HandleRights("Supervisor.Spawn", func(req *peertest.Received) (any, error) {
		defer func() {
			for _, f := range req.Files {
				f.Close()
			}
		}()
		if _, err := req.Files[1].Write([]byte("hello")); err != nil {
			return nil, err
		}
		return map[string]string{"handle": "abc123"}, nil
	})

	stdinR, stdinW, err := os.Pipe()
	require.NoError(t, err)
	defer stdinR.Close()
	defer stdinW.Close()
	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	defer stdoutR.Close()
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)
	defer stderrR.Close()
	defer stderrW.Close()

	var group errgroup.Group
	group.Go(peer.ServeOne)

	var result struct {
		Handle string `json:"handle"`
	}
	err = s.CallInto(context.Background(), "Supervisor.Spawn",
		rpc.Args{"owner_name": "alice", "name": "job1"}, &result,
		rpc.WithDescriptors(stdinR, stdoutW, stderrW),
	)
	require.NoError(t, err)
	require.NoError(t, group.Wait())
	assert.Equal(t, "abc123", result.Handle)

	received := peer.Received()
	require.Len(t, received, 1)
	assert.Len(t, received[0].Files, 3)
	assert.Equal(t, rpc.Args{"owner_name": "alice", "name": "job1"}, received[0].Args)

	// the peer wrote through its duplicate of our stdout pipe
	require.NoError(t, stdoutW.Close())
	b, err := io.ReadAll(stdoutR)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestUnixTransportClosedDescriptorKeepsSessionUsable(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr)
	peer.Handle("Output.SetPrivate", func(req *peertest.Received) (any, error) { return struct{}{}, nil })

	_, err := s.Call(context.Background(), "Supervisor.Spawn",
		rpc.Args{"owner_name": "alice", "name": "job1"},
		rpc.WithDescriptors(closedFile(t), os.Stdout, os.Stderr),
	)
	require.ErrorIs(t, err, rpc.ErrInvalidDescriptor)
	require.NoError(t, s.Err())

	// nothing reached the peer, so the next call is still request 0
	var group errgroup.Group
	group.Go(peer.ServeOne)
	_, err = s.Call(context.Background(), "Output.SetPrivate", rpc.Args{"private": true})
	require.NoError(t, err)
	require.NoError(t, group.Wait())

	received := peer.Received()
	require.Len(t, received, 1)
	assert.Equal(t, "Output.SetPrivate", received[0].Method)
	assert.Equal(t, uint64(0), received[0].ID)
}

func TestUnixTransportMarkerOnlyWithoutDescriptors(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr)
	peer.HandleRights("Supervisor.Spawn", func(req *peertest.Received) (any, error) {
		return len(req.Files), nil
	})

	var group errgroup.Group
	group.Go(peer.ServeOne)

	var n int
	require.NoError(t, s.CallInto(context.Background(), "Supervisor.Spawn", nil, &n, rpc.WithDescriptors()))
	require.NoError(t, group.Wait())
	assert.Equal(t, 0, n)
}

func TestUnixTransportStaleAndDesync(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr, rpc.WithFirstID(5))
	peer.HandleRaw("Output.SetFormat", func(req *peertest.Received) []string {
		return []string{
			`{"id":3,"result":"old","error":null}`,
			`{"id":5,"result":"ok","error":null,"extra":1}`,
		}
	})
	peer.HandleRaw("Output.SetPrivate", func(req *peertest.Received) []string {
		return []string{`{"id":9,"result":null,"error":null}`}
	})

	var group errgroup.Group
	group.Go(func() error {
		if err := peer.ServeOne(); err != nil {
			return err
		}
		return peer.ServeOne()
	})

	result, err := s.Call(context.Background(), "Output.SetFormat", rpc.Args{"format": "text"})
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(result))

	_, err = s.Call(context.Background(), "Output.SetPrivate", rpc.Args{"private": true})
	var mismatched *rpc.MismatchedIDError
	require.ErrorAs(t, err, &mismatched)
	assert.Equal(t, uint64(6), mismatched.Expected)
	assert.Equal(t, uint64(9), mismatched.Got)
	require.NoError(t, group.Wait())
}

func TestCallPeerClosed(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr)
	peer.HandleRaw("Supervisor.Wait", func(req *peertest.Received) []string { return nil })

	var group errgroup.Group
	group.Go(func() error {
		if err := peer.ServeOne(); err != nil {
			return err
		}
		return peer.Close()
	})

	_, err := s.Call(context.Background(), "Supervisor.Wait", rpc.Args{"handle": "abc123"})
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, group.Wait())
}

func TestCallAbandonedOnContextDone(t *testing.T) {
	peer, tr := peertest.New(t)
	s := newSession(t, tr)
	peer.HandleRaw("Supervisor.Wait", func(req *peertest.Received) []string { return nil })

	var group errgroup.Group
	group.Go(peer.ServeOne)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, "Supervisor.Wait", rpc.Args{"handle": "abc123"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, group.Wait())

	// the peer still owes a response for ID 0, so the session must not be reused
	_, err = s.Call(context.Background(), "Supervisor.Wait", rpc.Args{"handle": "abc123"})
	assert.ErrorIs(t, err, rpc.ErrSessionBroken)
}

func TestFromFD(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	peerFile := os.NewFile(uintptr(fds[0]), "peer")
	peerConn, err := net.FileConn(peerFile)
	require.NoError(t, err)
	peerFile.Close()
	t.Cleanup(func() { peerConn.Close() })

	tr, err := rpc.FromFD(fds[1])
	require.NoError(t, err)
	s := newSession(t, tr)
	t.Cleanup(func() { s.Close() })

	peer := peertest.NewPeer(peerConn.(*net.UnixConn), zaptest.NewLogger(t).Sugar())
	peer.Handle("Output.SetFormat", func(req *peertest.Received) (any, error) {
		return req.Args["format"], nil
	})

	var group errgroup.Group
	group.Go(peer.ServeOne)

	var format string
	require.NoError(t, s.CallInto(context.Background(), "Output.SetFormat", rpc.Args{"format": "raw"}, &format))
	require.NoError(t, group.Wait())
	assert.Equal(t, "raw", format)
}

func TestFromFDRejectsNonSocket(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()
	defer r.Close()

	fd, err := unix.Dup(int(r.Fd()))
	require.NoError(t, err)
	_, err = rpc.FromFD(fd)
	assert.Error(t, err)
}
