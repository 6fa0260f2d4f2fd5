package streamhttp

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// ErrTransportClosed is returned by Write after End.
var ErrTransportClosed = errors.New("streamhttp: transport closed")

// DefaultHighWater is the buffered byte count at which HTTPTransport reports
// saturation.
const DefaultHighWater = 16 << 10

// Transport is the outbound side of one streaming response.
type Transport interface {
	// Write queues p. ok is false when the outbound buffer is saturated; the
	// caller must wait on Drained before writing again.
	Write(p []byte) (ok bool, err error)
	// Drained is closed once a saturated buffer has room again. It is already
	// closed when the buffer is not saturated.
	Drained() <-chan struct{}
	// End flushes what is queued and closes the response. Only the first call
	// has an effect.
	End() error
	// OnDisconnect registers fn to run when the peer goes away.
	OnDisconnect(fn func())
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// HTTPTransport adapts an http.ResponseWriter to Transport. Writes are queued
// in a bounded buffer and a pump goroutine copies them to the client,
// flushing after every batch.
type HTTPTransport struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	ctx       context.Context
	highWater int
	lowWater  int

	mu      sync.Mutex
	queue   [][]byte
	pending int
	drained chan struct{}
	closed  bool
	err     error
	written int64
	stops   []func() bool

	wake    chan struct{}
	done    chan struct{}
	endOnce sync.Once
	endErr  error
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport starts a transport for w. The request context is the
// disconnect source. highWater <= 0 selects DefaultHighWater.
func NewHTTPTransport(w http.ResponseWriter, r *http.Request, highWater int) *HTTPTransport {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	t := &HTTPTransport{
		w:         w,
		rc:        http.NewResponseController(w),
		ctx:       r.Context(),
		highWater: highWater,
		lowWater:  highWater / 2,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go t.pump()
	return t
}

// Write implements Transport.
func (t *HTTPTransport) Write(p []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return false, t.err
	}
	if t.closed {
		return false, ErrTransportClosed
	}
	if len(p) > 0 {
		t.queue = append(t.queue, append([]byte(nil), p...))
		t.pending += len(p)
		t.notify()
	}
	if t.pending >= t.highWater {
		if t.drained == nil {
			t.drained = make(chan struct{})
		}
		return false, nil
	}
	return true, nil
}

// Drained implements Transport.
func (t *HTTPTransport) Drained() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drained == nil {
		return closedCh
	}
	return t.drained
}

// OnDisconnect implements Transport.
func (t *HTTPTransport) OnDisconnect(fn func()) {
	stop := context.AfterFunc(t.ctx, fn)
	t.mu.Lock()
	t.stops = append(t.stops, stop)
	t.mu.Unlock()
}

// End implements Transport. It waits for the pump to finish.
func (t *HTTPTransport) End() error {
	t.endOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.notify()
		t.mu.Unlock()

		<-t.done

		t.mu.Lock()
		for _, stop := range t.stops {
			stop()
		}
		t.stops = nil
		t.releaseDrained()
		t.endErr = t.err
		t.mu.Unlock()
	})
	return t.endErr
}

// Written reports the bytes handed to the ResponseWriter so far.
func (t *HTTPTransport) Written() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

func (t *HTTPTransport) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *HTTPTransport) releaseDrained() {
	if t.drained != nil {
		close(t.drained)
		t.drained = nil
	}
}

func (t *HTTPTransport) pump() {
	defer close(t.done)
	for {
		t.mu.Lock()
		batch := t.queue
		t.queue = nil
		closed := t.closed
		t.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-t.wake
			continue
		}

		queued, written, err := t.flush(batch)

		t.mu.Lock()
		t.pending -= queued
		t.written += written
		if err != nil && t.err == nil {
			t.err = err
		}
		if t.err != nil || t.pending <= t.lowWater {
			t.releaseDrained()
		}
		t.mu.Unlock()
	}
}

// flush copies batch to the client. Once the peer is gone or a write has
// failed, remaining chunks are discarded.
func (t *HTTPTransport) flush(batch [][]byte) (queued int, written int64, err error) {
	for _, chunk := range batch {
		queued += len(chunk)
		if err != nil {
			continue
		}
		if cerr := t.ctx.Err(); cerr != nil {
			err = cerr
			continue
		}
		n, werr := t.w.Write(chunk)
		written += int64(n)
		if werr != nil {
			err = werr
		}
	}
	if err == nil {
		if ferr := t.rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
			err = ferr
		}
	}
	return queued, written, err
}
