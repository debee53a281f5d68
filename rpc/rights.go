package rpc

import (
	"fmt"
	"runtime"
)

// MaxDescriptors is the most descriptors a single call may hand to the peer (stdin, stdout, stderr).
const MaxDescriptors = 3

// Descriptor is anything backed by an OS file descriptor. *os.File satisfies it.
type Descriptor interface {
	Fd() uintptr
}

// FD is an explicit descriptor number.
type FD int

func (f FD) Fd() uintptr { return uintptr(f) }

// ResolveDescriptors returns the descriptor numbers for ds, in order.
// Position is meaningful to the peer, so nil entries are rejected rather than skipped.
func ResolveDescriptors(ds []Descriptor) ([]int, error) {
	if len(ds) > MaxDescriptors {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyDescriptors, len(ds))
	}
	fds := make([]int, len(ds))
	for i, d := range ds {
		if d == nil {
			return nil, fmt.Errorf("descriptor %d: %w", i, ErrNilDescriptor)
		}
		fd := int(d.Fd())
		// a nil or closed *os.File reports ^uintptr(0)
		if fd < 0 {
			return nil, fmt.Errorf("descriptor %d: %w", i, ErrInvalidDescriptor)
		}
		fds[i] = fd
	}
	return fds, nil
}

// WithDescriptors hands ds to the peer right after the request is written.
// The peer receives duplicates; the caller keeps ownership of its own descriptors and stays responsible for closing them.
func WithDescriptors(ds ...Descriptor) CallOption {
	return func(c *callConfig) {
		c.descriptors = append(c.descriptors, ds...)
		c.sendRights = true
	}
}

// sendDescriptors is the after-send step for calls that carry descriptors.
func sendDescriptors(t Transport, fds []int, ds []Descriptor) error {
	err := t.SendRights(fds)
	// the fds were taken from ds; don't let a finalizer close them mid-send
	runtime.KeepAlive(ds)
	return err
}
