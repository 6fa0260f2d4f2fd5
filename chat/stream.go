package chat

import (
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/delay"
)

// DefaultModel is the model name reported by MessageStart.
const DefaultModel = "mock-gpt-1"

// Stream is a pull-based, one-shot sequence of events. Recv returns io.EOF
// after the last event of a completed stream and abort.ErrAborted when the
// stream was cut short by its signal. Terminal errors are sticky.
type Stream interface {
	Recv() (Event, error)
}

// Options configures a ChatStream. Zero fields take the values from
// DefaultOptions.
type Options struct {
	Model      string
	Paragraphs int
	Sleeper    delay.Sleeper
	ThinkMin   time.Duration
	ThinkMax   time.Duration
	TokenMin   time.Duration
	TokenMax   time.Duration
	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
	Text  func(paragraphs int) string
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		Model:      DefaultModel,
		Paragraphs: 3,
		Sleeper:    delay.Real,
		ThinkMin:   2000 * time.Millisecond,
		ThinkMax:   3000 * time.Millisecond,
		TokenMin:   80 * time.Millisecond,
		TokenMax:   100 * time.Millisecond,
		Now:        time.Now,
		NewID:      NewMessageID,
		Text:       ParagraphText,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.Paragraphs <= 0 {
		o.Paragraphs = d.Paragraphs
	}
	if o.Sleeper == nil {
		o.Sleeper = d.Sleeper
	}
	if o.ThinkMin == 0 && o.ThinkMax == 0 {
		o.ThinkMin, o.ThinkMax = d.ThinkMin, d.ThinkMax
	}
	if o.TokenMin == 0 && o.TokenMax == 0 {
		o.TokenMin, o.TokenMax = d.TokenMin, d.TokenMax
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	if o.NewID == nil {
		o.NewID = d.NewID
	}
	if o.Text == nil {
		o.Text = d.Text
	}
	return o
}

// NewMessageID returns an id of the form msg_<12 alphanumerics>.
func NewMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

type phase int

const (
	phaseStart phase = iota
	phaseThinking
	phaseTokens
	phaseDone
)

// ChatStream simulates a chat completion: one MessageStart, a Delta per token
// of freshly generated text, then one MessageComplete.
type ChatStream struct {
	sig    *abort.Signal
	opts   Options
	phase  phase
	tokens []string
	next   int
	err    error
}

var _ Stream = (*ChatStream)(nil)

// NewChatStream returns a stream observing sig at every suspension point.
func NewChatStream(sig *abort.Signal, opts Options) *ChatStream {
	return &ChatStream{sig: sig, opts: opts.withDefaults()}
}

// Recv produces the next event, sleeping where the simulation calls for it.
func (s *ChatStream) Recv() (Event, error) {
	for {
		switch s.phase {
		case phaseStart:
			if s.sig.Cancelled() {
				return s.stop(abort.ErrAborted)
			}
			s.phase = phaseThinking
			return MessageStart{
				MessageID: s.opts.NewID(),
				Model:     s.opts.Model,
				CreatedAt: s.opts.Now().Unix(),
			}, nil

		case phaseThinking:
			delay.Random(s.opts.Sleeper, s.opts.ThinkMin, s.opts.ThinkMax)
			if s.sig.Cancelled() {
				return s.stop(abort.ErrAborted)
			}
			s.tokens = Tokenize(s.opts.Text(s.opts.Paragraphs))
			s.phase = phaseTokens

		case phaseTokens:
			if s.next > 0 {
				delay.Random(s.opts.Sleeper, s.opts.TokenMin, s.opts.TokenMax)
			}
			if s.sig.Cancelled() {
				return s.stop(abort.ErrAborted)
			}
			if s.next < len(s.tokens) {
				ev := Delta{Delta: DeltaContent{Content: s.tokens[s.next]}, Index: s.next}
				s.next++
				return ev, nil
			}
			n := len(s.tokens)
			s.phase = phaseDone
			s.err = io.EOF
			return MessageComplete{
				FinishReason: FinishStop,
				Usage:        Usage{CompletionTokens: n, TotalTokens: n},
			}, nil

		default:
			return nil, s.err
		}
	}
}

func (s *ChatStream) stop(err error) (Event, error) {
	s.phase = phaseDone
	s.err = err
	return nil, err
}
