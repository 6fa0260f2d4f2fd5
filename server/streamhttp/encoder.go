package streamhttp

import (
	"errors"
	"fmt"
	"io"

	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/chat"
)

// State is the lifecycle of one streaming response:
// IDLE → STREAMING → {COMPLETE | CANCELLED | FAILED}.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateComplete
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateFailed
}

// Result describes how an encoder finished. Units counts events for the
// structured encoders and code points for the raw encoder.
type Result struct {
	State State
	Units int
	Err   error
}

// framer turns one event into the pieces written for it. Each piece is
// written separately and subject to backpressure.
type framer func(ev chat.Event) ([][]byte, error)

// session owns the transport and signal of one response.
type session struct {
	t   Transport
	sig *abort.Signal
	res Result
}

func newSession(t Transport, sig *abort.Signal) *session {
	return &session{t: t, sig: sig, res: Result{State: StateIdle}}
}

// write hands p to the transport and, if the transport reports saturation,
// blocks until it drains or the signal fires.
func (s *session) write(p []byte) error {
	ok, err := s.t.Write(p)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	select {
	case <-s.t.Drained():
		return nil
	case <-s.sig.Done():
		return abort.ErrAborted
	}
}

func (s *session) cancelled() Result {
	s.res.State = StateCancelled
	return s.res
}

// fail classifies err. Write errors caused by the peer leaving count as
// cancellation.
func (s *session) fail(err error) Result {
	if errors.Is(err, abort.ErrAborted) || s.sig.Cancelled() {
		return s.cancelled()
	}
	s.res.State = StateFailed
	s.res.Err = err
	return s.res
}

// finish ends the transport exactly once and folds a close error into a
// result that would otherwise be reported as complete.
func (s *session) finish(res *Result) {
	if r := recover(); r != nil {
		*res = s.fail(fmt.Errorf("encoder panic: %v", r))
	}
	if err := s.t.End(); err != nil && res.State == StateComplete {
		if s.sig.Cancelled() {
			res.State = StateCancelled
		} else {
			res.State = StateFailed
			res.Err = fmt.Errorf("close stream: %w", err)
		}
	}
}

// runEvents pulls events from src and writes them through frame until the
// source is exhausted, the signal fires, or a write fails. trailer, if set,
// is written only after normal completion.
func runEvents(t Transport, sig *abort.Signal, src chat.Stream, frame framer, trailer []byte) (res Result) {
	s := newSession(t, sig)
	defer s.finish(&res)
	s.res.State = StateStreaming

	for {
		if sig.Cancelled() {
			return s.cancelled()
		}
		ev, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, abort.ErrAborted) {
				return s.cancelled()
			}
			return s.fail(fmt.Errorf("next event: %w", err))
		}
		if sig.Cancelled() {
			return s.cancelled()
		}
		pieces, err := frame(ev)
		if err != nil {
			return s.fail(err)
		}
		for _, p := range pieces {
			if err := s.write(p); err != nil {
				return s.fail(err)
			}
		}
		s.res.Units++
	}

	if sig.Cancelled() {
		return s.cancelled()
	}
	if trailer != nil {
		if err := s.write(trailer); err != nil {
			return s.fail(err)
		}
	}
	s.res.State = StateComplete
	return s.res
}
