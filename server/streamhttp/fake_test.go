package streamhttp

import (
	"bytes"
	"io"
	"sync"

	"github.com/KamdynS/streamdemo/chat"
)

// fakeTransport records the order of calls made by an encoder.
type fakeTransport struct {
	mu sync.Mutex

	saturate      bool // every Write reports saturation
	stuck         bool // Drained never closes
	writeErr      error
	disconnectNow bool

	ops       []string
	body      bytes.Buffer
	ends      int
	callbacks []func()
}

func (f *fakeTransport) Write(p []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "write")
	if f.writeErr != nil {
		return false, f.writeErr
	}
	f.body.Write(p)
	return !f.saturate, nil
}

func (f *fakeTransport) Drained() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "drain")
	if f.stuck {
		return make(chan struct{})
	}
	return closedCh
}

func (f *fakeTransport) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "end")
	f.ends++
	return nil
}

func (f *fakeTransport) OnDisconnect(fn func()) {
	if f.disconnectNow {
		fn()
		return
	}
	f.mu.Lock()
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

func (f *fakeTransport) disconnect() {
	f.mu.Lock()
	cbs := append([]func(){}, f.callbacks...)
	f.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

func (f *fakeTransport) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.String()
}

func (f *fakeTransport) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) Ends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ends
}

// sliceStream replays a fixed list of events.
type sliceStream struct {
	events []chat.Event
	next   int
	// onRecv runs after the n-th event has been produced.
	onRecv func(n int)
}

func (s *sliceStream) Recv() (chat.Event, error) {
	if s.next >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	if s.onRecv != nil {
		s.onRecv(s.next)
	}
	return ev, nil
}

func scripted(tokens ...string) []chat.Event {
	evs := []chat.Event{chat.MessageStart{MessageID: "msg_000000000001", Model: chat.DefaultModel, CreatedAt: 1700000000}}
	for i, tok := range tokens {
		evs = append(evs, chat.Delta{Delta: chat.DeltaContent{Content: tok}, Index: i})
	}
	return append(evs, chat.MessageComplete{
		FinishReason: chat.FinishStop,
		Usage:        chat.Usage{CompletionTokens: len(tokens), TotalTokens: len(tokens)},
	})
}
