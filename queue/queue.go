// Package queue provides the job queue behind POST /api/queue/submit and its
// backends: in-memory, Redis and SQS.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the queue submitted jobs are routed to.
const DefaultName = "jobs"

var (
	// ErrEmpty is returned by DequeueWithTimeout when no job arrived in time.
	ErrEmpty = errors.New("queue: empty")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Job is a unit of work submitted by a client.
type Job struct {
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
	// CreatedAt is unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
	Attempts  int   `json:"attempts,omitempty"`
}

// Result is the outcome of processing a Job.
type Result struct {
	RequestID string `json:"requestId"`
	Result    string `json:"result"`
	// ProcessedAt is unix milliseconds.
	ProcessedAt int64 `json:"processedAt"`
}

// Queue defines the interface for job distribution
type Queue interface {
	// Enqueue adds a job to the queue
	Enqueue(ctx context.Context, queueName string, job *Job) error

	// DequeueWithTimeout retrieves a job, waiting at most timeout. It returns
	// ErrEmpty if nothing arrived.
	DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)

	// Ack acknowledges successful job completion
	Ack(ctx context.Context, queueName string, requestID string) error

	// Nack indicates job failure and potentially requeues
	Nack(ctx context.Context, queueName string, requestID string, requeue bool) error

	// Len returns the number of jobs waiting in the queue
	Len(ctx context.Context, queueName string) (int, error)

	// Close closes the queue and releases resources
	Close() error
}

// NewJob creates a job with a fresh request id. A nil payload is stored as
// JSON null.
func NewJob(payload json.RawMessage) *Job {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &Job{
		RequestID: uuid.NewString(),
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
}
