package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KamdynS/streamdemo/queue"
)

// DefaultJobDuration is the simulated processing time of one job.
const DefaultJobDuration = 2 * time.Second

// SimulatedProcessor waits Duration and then describes the job it was given.
type SimulatedProcessor struct {
	Duration time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Process implements Processor. It returns early with the context error if
// ctx ends during the wait.
func (p SimulatedProcessor) Process(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	if p.Duration > 0 {
		t := time.NewTimer(p.Duration)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return &queue.Result{
		RequestID:   job.RequestID,
		Result:      fmt.Sprintf("Processed job %s with payload: %s", job.RequestID, compactPayload(job.Payload)),
		ProcessedAt: now().UnixMilli(),
	}, nil
}

func compactPayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
