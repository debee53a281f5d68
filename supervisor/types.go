package supervisor

import (
	"syscall"

	"github.com/guseggert/k4/rpc"
)

// SpawnRequest asks the supervisor to run another script.
// Stdin, Stdout and Stderr are handed to the peer in that order and become the child's stdio.
// The caller keeps its own descriptors open or closed as it sees fit; the peer gets duplicates.
// OwnerName is sent as "owner_name"; a peer that decodes "ownerName" instead will see it empty.
type SpawnRequest struct {
	OwnerName string
	Name      string

	Stdin  rpc.Descriptor
	Stdout rpc.Descriptor
	Stderr rpc.Descriptor
}

type spawnResponse struct {
	Handle Handle `json:"handle"`
}

// WaitResult is what the supervisor reports once a child exits.
type WaitResult struct {
	WaitStatus        uint32 `json:"waitStatus"`
	TimeLimitExceeded bool   `json:"timeLimitExceeded"`
	OutputFormat      string `json:"outputFormat"`
	Private           bool   `json:"private"`
}

func (r *WaitResult) status() syscall.WaitStatus { return syscall.WaitStatus(r.WaitStatus) }

// ExitCode is the child's exit code, or -1 if it didn't exit normally.
func (r *WaitResult) ExitCode() int {
	if !r.status().Exited() {
		return -1
	}
	return r.status().ExitStatus()
}

// Signaled reports whether the child was killed by a signal, and which.
func (r *WaitResult) Signaled() (syscall.Signal, bool) {
	if !r.status().Signaled() {
		return 0, false
	}
	return r.status().Signal(), true
}
