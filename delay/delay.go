// Package delay holds the pacing helpers used by the streaming demos.
package delay

import (
	"math/rand/v2"
	"time"
)

// Sleeper suspends the caller. Implementations must not be interrupted by
// cancellation; callers check their signal once Sleep returns.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(d time.Duration)

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(d time.Duration) { f(d) }

var (
	// Real blocks for the requested duration.
	Real Sleeper = SleeperFunc(time.Sleep)
	// None returns immediately.
	None Sleeper = SleeperFunc(func(time.Duration) {})
)

// Between returns a uniformly random duration in [min, max].
func Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Random sleeps for a random duration in [min, max].
func Random(s Sleeper, min, max time.Duration) {
	s.Sleep(Between(min, max))
}
