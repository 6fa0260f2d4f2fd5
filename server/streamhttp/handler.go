// Package streamhttp serves simulated chat completions over HTTP as raw
// chunked text, NDJSON and Server-Sent Events.
package streamhttp

import (
	"log"
	"net/http"
	"time"

	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/chat"
	"github.com/KamdynS/streamdemo/observability"
)

// DefaultRawParagraphs is the size of the raw stream body.
const DefaultRawParagraphs = 16

const (
	contentTypeRaw    = "text/plain; charset=utf-8"
	contentTypeNDJSON = "application/x-ndjson; charset=utf-8"
	contentTypeSSE    = "text/event-stream; charset=utf-8"
)

// Options configures a Streamer.
type Options struct {
	// Chat is the template for every structured stream.
	Chat          chat.Options
	Raw           RawOptions
	RawParagraphs int
	HighWater     int
	Hooks         *observability.Hooks
}

// Streamer owns the three streaming endpoints.
type Streamer struct {
	opts Options

	// NewText builds the body of a raw stream.
	NewText func() (string, error)
	// NewStream builds the event source of a structured stream.
	NewStream func(sig *abort.Signal) (chat.Stream, error)
}

// NewStreamer returns a Streamer producing lorem text with opts' pacing.
func NewStreamer(opts Options) *Streamer {
	if opts.RawParagraphs <= 0 {
		opts.RawParagraphs = DefaultRawParagraphs
	}
	if opts.Raw.CharDelay == 0 {
		opts.Raw.CharDelay = DefaultRawCharDelay
	}
	if opts.Raw.Sleeper == nil {
		opts.Raw.Sleeper = opts.Chat.Sleeper
	}
	s := &Streamer{opts: opts}
	s.NewText = func() (string, error) {
		return chat.ParagraphText(s.opts.RawParagraphs), nil
	}
	s.NewStream = func(sig *abort.Signal) (chat.Stream, error) {
		return chat.NewChatStream(sig, s.opts.Chat), nil
	}
	return s
}

// RawHandler streams plain text one code point at a time.
func (s *Streamer) RawHandler(w http.ResponseWriter, r *http.Request) {
	text, err := s.NewText()
	if err != nil {
		s.startFailed(w, r, "raw", err)
		return
	}
	streamHeaders(w.Header(), contentTypeRaw)
	sig := abort.New()
	s.serve(w, r, "raw", sig, false, func(t Transport) Result {
		return EncodeRaw(t, sig, text, s.opts.Raw)
	})
}

// NDJSONHandler streams chat events as newline-delimited JSON.
func (s *Streamer) NDJSONHandler(w http.ResponseWriter, r *http.Request) {
	sig := abort.New()
	src, err := s.NewStream(sig)
	if err != nil {
		s.startFailed(w, r, "ndjson", err)
		return
	}
	streamHeaders(w.Header(), contentTypeNDJSON)
	s.serve(w, r, "ndjson", sig, true, func(t Transport) Result {
		return EncodeNDJSON(t, sig, src)
	})
}

// SSEHandler streams chat events as Server-Sent Events.
func (s *Streamer) SSEHandler(w http.ResponseWriter, r *http.Request) {
	sig := abort.New()
	src, err := s.NewStream(sig)
	if err != nil {
		s.startFailed(w, r, "sse", err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", contentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.serve(w, r, "sse", sig, true, func(t Transport) Result {
		return EncodeSSE(t, sig, src)
	})
}

func streamHeaders(h http.Header, contentType string) {
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
}

// serve binds sig to a fresh transport over w and runs the encoder. When
// commit is set the status line and headers are flushed before any body.
func (s *Streamer) serve(w http.ResponseWriter, r *http.Request, kind string, sig *abort.Signal, commit bool, run func(Transport) Result) {
	ctx := r.Context()
	start := time.Now()
	if commit {
		w.WriteHeader(http.StatusOK)
		_ = http.NewResponseController(w).Flush()
	}
	t := NewHTTPTransport(w, r, s.opts.HighWater)
	sig.BindTo(t)
	s.opts.Hooks.SafeStreamStart(ctx, kind)

	res := run(t)

	s.opts.Hooks.SafeStreamEnd(ctx, observability.StreamStats{
		Kind:     kind,
		State:    res.State.String(),
		Events:   res.Units,
		Bytes:    t.Written(),
		Duration: time.Since(start),
		Err:      res.Err,
	})
	if res.State == StateFailed {
		log.Printf("[Stream] %s stream failed: %v", kind, res.Err)
	}
}

func (s *Streamer) startFailed(w http.ResponseWriter, r *http.Request, kind string, err error) {
	s.opts.Hooks.SafeLog(r.Context(), "error", "stream setup failed", map[string]any{"kind": kind, "error": err.Error()})
	http.Error(w, "failed to start "+kind+" stream", http.StatusInternalServerError)
}
