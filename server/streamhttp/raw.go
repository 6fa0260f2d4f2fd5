package streamhttp

import (
	"time"
	"unicode/utf8"

	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/delay"
)

// DefaultRawCharDelay is the pause after each code point of the raw stream.
const DefaultRawCharDelay = 5 * time.Millisecond

// RawOptions paces EncodeRaw.
type RawOptions struct {
	CharDelay time.Duration
	Sleeper   delay.Sleeper
}

// EncodeRaw writes text one Unicode code point per chunk, pausing between
// chunks, and ends the transport when the text is exhausted or sig fires.
func EncodeRaw(t Transport, sig *abort.Signal, text string, opts RawOptions) (res Result) {
	if opts.Sleeper == nil {
		opts.Sleeper = delay.Real
	}
	if opts.CharDelay < 0 {
		opts.CharDelay = 0
	}

	s := newSession(t, sig)
	defer s.finish(&res)
	s.res.State = StateStreaming

	buf := make([]byte, 0, utf8.UTFMax)
	for _, r := range text {
		if sig.Cancelled() {
			return s.cancelled()
		}
		buf = utf8.AppendRune(buf[:0], r)
		if err := s.write(buf); err != nil {
			return s.fail(err)
		}
		s.res.Units++
		opts.Sleeper.Sleep(opts.CharDelay)
	}
	s.res.State = StateComplete
	return s.res
}
