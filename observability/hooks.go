// Package observability provides optional callbacks for logging and metrics
// without tying the streaming core to a particular backend.
package observability

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// StreamStats summarises one finished streaming response.
type StreamStats struct {
	Kind     string
	State    string
	Events   int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Hooks provides optional callbacks for logging, metrics, and tracing. All
// functions are optional.
type Hooks struct {
	// Logf logs a structured message with a severity level and key-value fields.
	Logf func(ctx context.Context, level string, msg string, fields map[string]any)

	// OnStreamStart is called once headers for a streaming response are committed.
	OnStreamStart func(ctx context.Context, kind string)
	// OnStreamEnd is called exactly once per streaming response, after the
	// transport has been closed.
	OnStreamEnd func(ctx context.Context, stats StreamStats)
	// OnJobProcessed is called after the worker finishes a job.
	OnJobProcessed func(ctx context.Context, requestID string, latency time.Duration, err error)
}

// SafeLog logs if Logf is configured.
func (h *Hooks) SafeLog(ctx context.Context, level string, msg string, fields map[string]any) {
	if h != nil && h.Logf != nil {
		h.Logf(ctx, level, msg, fields)
	}
}

// SafeStreamStart invokes OnStreamStart if configured.
func (h *Hooks) SafeStreamStart(ctx context.Context, kind string) {
	if h != nil && h.OnStreamStart != nil {
		h.OnStreamStart(ctx, kind)
	}
}

// SafeStreamEnd invokes OnStreamEnd if configured.
func (h *Hooks) SafeStreamEnd(ctx context.Context, stats StreamStats) {
	if h != nil && h.OnStreamEnd != nil {
		h.OnStreamEnd(ctx, stats)
	}
}

// SafeJobProcessed invokes OnJobProcessed if configured.
func (h *Hooks) SafeJobProcessed(ctx context.Context, requestID string, latency time.Duration, err error) {
	if h != nil && h.OnJobProcessed != nil {
		h.OnJobProcessed(ctx, requestID, latency, err)
	}
}

// LogHooks returns hooks that write through the standard logger.
func LogHooks() *Hooks {
	h := &Hooks{
		Logf: func(_ context.Context, level string, msg string, fields map[string]any) {
			log.Printf("[%s] %s%s", strings.ToUpper(level), msg, formatFields(fields))
		},
	}
	h.OnStreamEnd = func(ctx context.Context, s StreamStats) {
		fields := map[string]any{
			"kind":     s.Kind,
			"state":    s.State,
			"events":   s.Events,
			"bytes":    s.Bytes,
			"duration": s.Duration.Round(time.Millisecond),
		}
		level := "info"
		if s.Err != nil {
			fields["error"] = s.Err.Error()
			level = "warn"
		}
		h.SafeLog(ctx, level, "stream finished", fields)
	}
	h.OnJobProcessed = func(ctx context.Context, requestID string, latency time.Duration, err error) {
		fields := map[string]any{"request_id": requestID, "latency": latency.Round(time.Millisecond)}
		if err != nil {
			fields["error"] = err.Error()
			h.SafeLog(ctx, "error", "job failed", fields)
			return
		}
		h.SafeLog(ctx, "info", "job processed", fields)
	}
	return h
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		fmt.Fprint(&b, fields[k])
	}
	return b.String()
}
