// Package abort provides the per-request cancellation signal shared by the
// content generators and the protocol encoders.
package abort

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAborted is returned by producers that stopped because their signal fired.
var ErrAborted = errors.New("abort: signal aborted")

// Disconnecter is implemented by transports that can report a peer going away.
type Disconnecter interface {
	OnDisconnect(fn func())
}

// Signal is a monotonic cancellation flag. It starts live and can only move
// to cancelled. A Signal belongs to exactly one request.
type Signal struct {
	aborted atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// New returns a live signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Cancelled reports whether Cancel has been called.
func (s *Signal) Cancelled() bool {
	return s.aborted.Load()
}

// Cancel flips the signal. Safe to call any number of times from any goroutine.
func (s *Signal) Cancel() {
	s.once.Do(func() {
		s.aborted.Store(true)
		close(s.done)
	})
}

// Done is closed once the signal is cancelled.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// BindTo registers Cancel on the transport's disconnect notification.
func (s *Signal) BindTo(d Disconnecter) {
	d.OnDisconnect(s.Cancel)
}
