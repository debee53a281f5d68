package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/guseggert/k4/internal/peertest"
	"github.com/guseggert/k4/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

// recordingTransport replays canned responses and records requests and descriptor sends.
type recordingTransport struct {
	in     io.Reader
	out    bytes.Buffer
	events []string
	rights [][]int
}

func (r *recordingTransport) Read(p []byte) (int, error) {
	r.events = append(r.events, "read")
	return r.in.Read(p)
}

func (r *recordingTransport) Write(p []byte) (int, error) {
	r.events = append(r.events, "write")
	return r.out.Write(p)
}

func (r *recordingTransport) SendRights(fds []int) error {
	r.events = append(r.events, "rights")
	r.rights = append(r.rights, fds)
	return nil
}

func (r *recordingTransport) requests(t *testing.T) []map[string]any {
	var reqs []map[string]any
	scanner := bufio.NewScanner(&r.out)
	for scanner.Scan() {
		var req map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &req))
		reqs = append(reqs, req)
	}
	return reqs
}

func TestSpawnThenWait(t *testing.T) {
	tr := &recordingTransport{in: strings.NewReader(
		`{"id":0,"result":{"handle":"abc123"},"error":null}` + "\n" +
			`{"id":1,"result":{"waitStatus":0,"timeLimitExceeded":false,"outputFormat":"text","private":false},"error":null}` + "\n",
	)}
	log := zaptest.NewLogger(t)
	c := New(rpc.NewSession(tr, rpc.WithLogger(log)), log.Sugar())
	ctx := context.Background()

	child, err := c.Spawn(ctx, SpawnRequest{
		OwnerName: "alice",
		Name:      "job1",
		Stdin:     rpc.FD(7),
		Stdout:    rpc.FD(8),
		Stderr:    rpc.FD(9),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", child.Handle().String())

	// exactly one descriptor send, after the request and before the response
	assert.Equal(t, [][]int{{7, 8, 9}}, tr.rights)
	assert.Equal(t, []string{"write", "rights", "read"}, tr.events[:3])

	res, err := child.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode())

	reqs := tr.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Supervisor.Spawn", reqs[0]["method"])
	assert.Equal(t, []any{map[string]any{"owner_name": "alice", "name": "job1"}}, reqs[0]["params"])
	assert.Equal(t, "Supervisor.Wait", reqs[1]["method"])
	assert.Equal(t, []any{map[string]any{"handle": "abc123"}}, reqs[1]["params"])
}

func TestSpawnRequiresAllDescriptors(t *testing.T) {
	tr := &recordingTransport{in: strings.NewReader("")}
	s := rpc.NewSession(tr)
	c := New(s, nil)

	_, err := c.Spawn(context.Background(), SpawnRequest{OwnerName: "alice", Name: "job1", Stdin: rpc.FD(0), Stdout: rpc.FD(1)})
	assert.Error(t, err)
	assert.Empty(t, tr.events)

	var stderr *os.File
	_, err = c.Spawn(context.Background(), SpawnRequest{OwnerName: "alice", Name: "job1", Stdin: rpc.FD(0), Stdout: rpc.FD(1), Stderr: stderr})
	assert.ErrorIs(t, err, rpc.ErrInvalidDescriptor)
	assert.Empty(t, tr.events)
	assert.NoError(t, s.Err())
}

func TestSpawnWithoutHandle(t *testing.T) {
	tr := &recordingTransport{in: strings.NewReader(`{"id":0,"result":{},"error":null}` + "\n")}
	c := New(rpc.NewSession(tr), nil)

	_, err := c.Spawn(context.Background(), SpawnRequest{OwnerName: "alice", Name: "job1", Stdin: rpc.FD(0), Stdout: rpc.FD(1), Stderr: rpc.FD(2)})
	assert.ErrorContains(t, err, "no handle")
}

func TestHandleIsSentBackVerbatim(t *testing.T) {
	tr := &recordingTransport{in: strings.NewReader(
		`{"id":0,"result":{"handle":4},"error":null}` + "\n" +
			`{"id":1,"result":null,"error":null}` + "\n",
	)}
	c := New(rpc.NewSession(tr), nil)
	ctx := context.Background()

	child, err := c.Spawn(ctx, SpawnRequest{OwnerName: "alice", Name: "job1", Stdin: rpc.FD(0), Stdout: rpc.FD(1), Stderr: rpc.FD(2)})
	require.NoError(t, err)
	assert.Equal(t, "4", child.Handle().String())

	require.NoError(t, child.Signal(ctx, syscall.SIGTERM))
	reqs := tr.requests(t)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Supervisor.Signal", reqs[1]["method"])
	assert.Equal(t, []any{map[string]any{"handle": float64(4), "signal": float64(15)}}, reqs[1]["params"])
}

func TestWaitServerError(t *testing.T) {
	tr := &recordingTransport{in: strings.NewReader(`{"id":0,"result":null,"error":"invalid handle"}` + "\n")}
	c := New(rpc.NewSession(tr), nil)

	_, err := NewChild(c, StringHandle("nope")).Wait(context.Background())
	var serverErr *rpc.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "invalid handle", serverErr.Message())
}

func TestHandleJSON(t *testing.T) {
	var h Handle
	assert.True(t, h.IsZero())
	_, err := json.Marshal(h)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"k":"v"}`), &h))
	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(b))

	assert.Equal(t, "abc123", StringHandle("abc123").String())
}

func TestWaitResult(t *testing.T) {
	exited := WaitResult{WaitStatus: 3 << 8}
	assert.Equal(t, 3, exited.ExitCode())
	_, signaled := exited.Signaled()
	assert.False(t, signaled)

	killed := WaitResult{WaitStatus: uint32(syscall.SIGKILL)}
	assert.Equal(t, -1, killed.ExitCode())
	sig, signaled := killed.Signaled()
	assert.True(t, signaled)
	assert.Equal(t, syscall.SIGKILL, sig)
}

type pipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func newPipes(t *testing.T) *pipes {
	var p pipes
	var err error
	p.stdinR, p.stdinW, err = os.Pipe()
	require.NoError(t, err)
	p.stdoutR, p.stdoutW, err = os.Pipe()
	require.NoError(t, err)
	p.stderrR, p.stderrW, err = os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, f := range []*os.File{p.stdinR, p.stdinW, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW} {
			f.Close()
		}
	})
	return &p
}

// closeChildEnds closes our copies of the child's ends so reads see EOF once the child exits.
func (p *pipes) closeChildEnds() {
	p.stdinR.Close()
	p.stdoutW.Close()
	p.stderrW.Close()
}

func TestSpawnRealProcess(t *testing.T) {
	peer, tr := peertest.New(t)
	peertest.NewProcessTable("sh", "-c", `read line; echo "got $line from $K4_SCRIPT"; echo oops >&2; exit 3`).Register(peer)

	log := zaptest.NewLogger(t)
	c := New(rpc.NewSession(tr, rpc.WithLogger(log)), log.Sugar())
	ctx := context.Background()

	var group errgroup.Group
	group.Go(func() error {
		for i := 0; i < 2; i++ {
			if err := peer.ServeOne(); err != nil {
				return err
			}
		}
		return nil
	})

	p := newPipes(t)
	child, err := c.Spawn(ctx, SpawnRequest{OwnerName: "alice", Name: "job1", Stdin: p.stdinR, Stdout: p.stdoutW, Stderr: p.stderrW})
	require.NoError(t, err)
	p.closeChildEnds()

	_, err = p.stdinW.Write([]byte("hi\n"))
	require.NoError(t, err)
	require.NoError(t, p.stdinW.Close())

	res, err := child.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode())
	require.NoError(t, group.Wait())

	stdout, err := io.ReadAll(p.stdoutR)
	require.NoError(t, err)
	assert.Equal(t, "got hi from alice/job1\n", string(stdout))
	stderr, err := io.ReadAll(p.stderrR)
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(stderr))
}

func TestSignalRealProcess(t *testing.T) {
	peer, tr := peertest.New(t)
	peertest.NewProcessTable("sleep", "30").Register(peer)

	c := New(rpc.NewSession(tr), zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	var group errgroup.Group
	group.Go(func() error {
		for i := 0; i < 3; i++ {
			if err := peer.ServeOne(); err != nil {
				return err
			}
		}
		return nil
	})

	p := newPipes(t)
	child, err := c.Spawn(ctx, SpawnRequest{OwnerName: "alice", Name: "sleeper", Stdin: p.stdinR, Stdout: p.stdoutW, Stderr: p.stderrW})
	require.NoError(t, err)
	p.closeChildEnds()

	require.NoError(t, child.Signal(ctx, syscall.SIGKILL))
	res, err := child.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, group.Wait())

	sig, signaled := res.Signaled()
	assert.True(t, signaled)
	assert.Equal(t, syscall.SIGKILL, sig)
	assert.Equal(t, -1, res.ExitCode())
}
