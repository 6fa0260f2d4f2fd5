package delay

import (
	"testing"
	"time"
)

func TestBetween_StaysInRange(t *testing.T) {
	min, max := 80*time.Millisecond, 100*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := Between(min, max)
		if d < min || d > max {
			t.Fatalf("duration %v outside [%v, %v]", d, min, max)
		}
	}
}

func TestBetween_DegenerateRange(t *testing.T) {
	if d := Between(5*time.Millisecond, 5*time.Millisecond); d != 5*time.Millisecond {
		t.Fatalf("want 5ms got %v", d)
	}
	if d := Between(10*time.Millisecond, time.Millisecond); d != 10*time.Millisecond {
		t.Fatalf("inverted range should return min, got %v", d)
	}
}

func TestRandom_UsesSleeper(t *testing.T) {
	var got []time.Duration
	s := SleeperFunc(func(d time.Duration) { got = append(got, d) })
	Random(s, 2*time.Second, 3*time.Second)
	if len(got) != 1 {
		t.Fatalf("expected one sleep, got %d", len(got))
	}
	if got[0] < 2*time.Second || got[0] > 3*time.Second {
		t.Fatalf("sleep %v out of range", got[0])
	}
}
