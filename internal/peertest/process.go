package peertest

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// ProcessTable runs a real command for every Supervisor.Spawn, wiring the received descriptors to its stdio.
type ProcessTable struct {
	Command string
	Args    []string

	mut   sync.Mutex
	procs map[string]*proc
	next  int
}

type proc struct {
	cmd *exec.Cmd
}

// WaitResult is the body of a Supervisor.Wait response.
type WaitResult struct {
	WaitStatus        uint32 `json:"waitStatus"`
	TimeLimitExceeded bool   `json:"timeLimitExceeded"`
	OutputFormat      string `json:"outputFormat"`
	Private           bool   `json:"private"`
}

func NewProcessTable(command string, args ...string) *ProcessTable {
	return &ProcessTable{
		Command: command,
		Args:    args,
		procs:   map[string]*proc{},
	}
}

// Register installs the Supervisor handlers on p.
func (pt *ProcessTable) Register(p *Peer) {
	p.HandleRights("Supervisor.Spawn", pt.spawn)
	p.Handle("Supervisor.Wait", pt.wait)
	p.Handle("Supervisor.Signal", pt.signal)
}

func (pt *ProcessTable) spawn(req *Received) (any, error) {
	// the process gets its own copies; ours are closed either way
	defer func() {
		for _, f := range req.Files {
			f.Close()
		}
	}()
	if len(req.Files) != 3 {
		return nil, fmt.Errorf("incorrect number of files passed: len(fds) = %d", len(req.Files))
	}
	owner, _ := req.Args["owner_name"].(string)
	name, _ := req.Args["name"].(string)
	if owner == "" || name == "" {
		return nil, errors.New("script not found")
	}

	cmd := exec.Command(pt.Command, pt.Args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("K4_SCRIPT=%s/%s", owner, name))
	cmd.Stdin = req.Files[0]
	cmd.Stdout = req.Files[1]
	cmd.Stderr = req.Files[2]
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("running command: %w", err)
	}

	pt.mut.Lock()
	defer pt.mut.Unlock()
	handle := fmt.Sprintf("%s/%s#%d", owner, name, pt.next)
	pt.next++
	pt.procs[handle] = &proc{cmd: cmd}
	return map[string]any{"handle": handle}, nil
}

func (pt *ProcessTable) lookup(req *Received) (*proc, error) {
	handle, _ := req.Args["handle"].(string)
	pt.mut.Lock()
	defer pt.mut.Unlock()
	p, ok := pt.procs[handle]
	if !ok {
		return nil, errors.New("invalid handle")
	}
	return p, nil
}

func (pt *ProcessTable) wait(req *Received) (any, error) {
	p, err := pt.lookup(req)
	if err != nil {
		return nil, err
	}
	if err := p.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, err
		}
	}
	ws := p.cmd.ProcessState.Sys().(syscall.WaitStatus)
	return WaitResult{WaitStatus: uint32(ws), OutputFormat: "text"}, nil
}

func (pt *ProcessTable) signal(req *Received) (any, error) {
	p, err := pt.lookup(req)
	if err != nil {
		return nil, err
	}
	sig, ok := req.Args["signal"].(float64)
	if !ok {
		return nil, errors.New("invalid signal")
	}
	if err := p.cmd.Process.Signal(syscall.Signal(int(sig))); err != nil {
		return nil, err
	}
	return nil, nil
}
