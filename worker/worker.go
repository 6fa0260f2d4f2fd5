// Package worker runs submitted jobs one at a time and publishes their results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KamdynS/streamdemo/observability"
	"github.com/KamdynS/streamdemo/queue"
)

// Processor turns a job into its result.
type Processor interface {
	Process(ctx context.Context, job *queue.Job) (*queue.Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *queue.Job) (*queue.Result, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	return f(ctx, job)
}

// Publisher delivers results to interested clients.
type Publisher interface {
	Publish(ctx context.Context, result *queue.Result) error
}

// Worker polls jobs from a queue and processes them with a single slot, so
// at most one job is in flight and jobs finish in queue order.
type Worker struct {
	id           string
	queue        queue.Queue
	queueName    string
	processor    Processor
	publisher    Publisher
	hooks        *observability.Hooks
	pollInterval time.Duration
	maxAttempts  int
	stopCh       chan struct{}
	wg           sync.WaitGroup
	running      bool
	busy         atomic.Bool
	mu           sync.Mutex
}

// Config holds worker configuration
type Config struct {
	ID           string
	Queue        queue.Queue
	QueueName    string
	Processor    Processor
	Publisher    Publisher
	Hooks        *observability.Hooks
	PollInterval time.Duration
	// MaxAttempts is how many times a failing job is tried before it is
	// dropped.
	MaxAttempts int
}

// DefaultConfig returns a default worker configuration
func DefaultConfig() Config {
	return Config{
		ID:           fmt.Sprintf("worker-%d", time.Now().UnixNano()),
		QueueName:    queue.DefaultName,
		Processor:    SimulatedProcessor{Duration: DefaultJobDuration},
		PollInterval: time.Second,
		MaxAttempts:  1,
	}
}

// New creates a new worker
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	def := DefaultConfig()
	if cfg.QueueName == "" {
		cfg.QueueName = def.QueueName
	}
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.Processor == nil {
		cfg.Processor = def.Processor
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	return &Worker{
		id:           cfg.ID,
		queue:        cfg.Queue,
		queueName:    cfg.QueueName,
		processor:    cfg.Processor,
		publisher:    cfg.Publisher,
		hooks:        cfg.Hooks,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		stopCh:       make(chan struct{}),
	}, nil
}

// Busy reports whether a job is being processed right now.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Start begins polling for and processing jobs
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	log.Printf("[Worker %s] Starting worker on queue %s", w.id, w.queueName)

	w.wg.Add(1)
	go w.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the worker, letting an in-flight job finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[Worker %s] Stopping worker...", w.id)
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[Worker %s] Worker stopped gracefully", w.id)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop timeout: %w", ctx.Err())
	}
}

// pollLoop continuously polls for jobs
func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			log.Printf("[Worker %s] Context canceled", w.id)
			return
		default:
		}
		if err := w.pollOnce(ctx); errors.Is(err, queue.ErrClosed) {
			log.Printf("[Worker %s] Queue closed", w.id)
			return
		}
	}
}

// pollOnce polls for a single job and processes it
func (w *Worker) pollOnce(ctx context.Context) error {
	job, err := w.queue.DequeueWithTimeout(ctx, w.queueName, w.pollInterval)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrEmpty), ctx.Err() != nil:
		return nil
	case errors.Is(err, queue.ErrClosed):
		return err
	default:
		log.Printf("[Worker %s] Dequeue failed: %v", w.id, err)
		w.backoff()
		return nil
	}

	w.busy.Store(true)
	defer w.busy.Store(false)

	log.Printf("[Worker %s] Processing job %s (attempt %d)", w.id, job.RequestID, job.Attempts)
	start := time.Now()
	result, err := w.processor.Process(ctx, job)
	if err == nil && w.publisher != nil {
		if perr := w.publisher.Publish(ctx, result); perr != nil {
			log.Printf("[Worker %s] Failed to publish result for %s: %v", w.id, job.RequestID, perr)
		}
	}
	w.hooks.SafeJobProcessed(ctx, job.RequestID, time.Since(start), err)

	if err != nil {
		log.Printf("[Worker %s] Job %s failed: %v", w.id, job.RequestID, err)
		requeue := job.Attempts < w.maxAttempts
		if nerr := w.queue.Nack(ctx, w.queueName, job.RequestID, requeue); nerr != nil {
			log.Printf("[Worker %s] Failed to nack job %s: %v", w.id, job.RequestID, nerr)
		}
		return nil
	}
	if aerr := w.queue.Ack(ctx, w.queueName, job.RequestID); aerr != nil {
		log.Printf("[Worker %s] Failed to ack job %s: %v", w.id, job.RequestID, aerr)
	}
	log.Printf("[Worker %s] Completed job %s in %v", w.id, job.RequestID, time.Since(start).Round(time.Millisecond))
	return nil
}

func (w *Worker) backoff() {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.stopCh:
	}
}
