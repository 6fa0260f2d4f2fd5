package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultCapacity = 1024
	scanInterval    = 200 * time.Millisecond
)

// Hooks provides optional callbacks for queue operations. All are optional no-ops by default.
type Hooks struct {
	OnEnqueue   func(queueName string, job *Job)
	OnDequeue   func(queueName string, job *Job)
	OnAck       func(queueName string, job *Job)
	OnNack      func(queueName string, job *Job, requeue bool)
	OnRedeliver func(queueName string, job *Job)
}

// Options configures the in-memory queue behavior.
type Options struct {
	// VisibilityTimeout is how long a dequeued job may stay unacknowledged
	// before it is handed out again. Zero keeps it checked out until Ack or
	// Nack, which is what a single worker wants.
	VisibilityTimeout time.Duration
	// Capacity bounds the number of ready jobs per queue name. Enqueue blocks
	// while a queue is full.
	Capacity int
	// DeadLetter keeps jobs Nack'ed without requeue for DeadLetters.
	DeadLetter bool
	Hooks      Hooks
}

var _ Queue = (*InMemoryQueue)(nil)

// lane is the state behind one queue name.
type lane struct {
	ready    chan *Job
	checkout map[string]*checkedOut
	dead     []*Job
}

type checkedOut struct {
	job *Job
	// expires is zero when the job never times out.
	expires time.Time
}

// InMemoryQueue is a channel-based in-memory queue implementation. Jobs are
// delivered in FIFO order per queue name.
type InMemoryQueue struct {
	mu     sync.RWMutex
	lanes  map[string]*lane
	closed bool
	opts   Options
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates an in-memory queue that never redelivers on its
// own.
func NewInMemoryQueue() *InMemoryQueue {
	return NewInMemoryQueueWithOptions(Options{})
}

// NewInMemoryQueueWithOptions creates a new in-memory queue with options.
func NewInMemoryQueueWithOptions(opts Options) *InMemoryQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	q := &InMemoryQueue{
		lanes:  make(map[string]*lane),
		opts:   opts,
		stopCh: make(chan struct{}),
	}
	if opts.VisibilityTimeout > 0 {
		q.wg.Add(1)
		go q.expireLoop()
	}
	return q
}

func (q *InMemoryQueue) lane(queueName string) (*lane, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	l, ok := q.lanes[queueName]
	if !ok {
		l = &lane{
			ready:    make(chan *Job, q.opts.Capacity),
			checkout: make(map[string]*checkedOut),
		}
		q.lanes[queueName] = l
	}
	return l, nil
}

// Enqueue implements Queue
func (q *InMemoryQueue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	l, err := q.lane(queueName)
	if err != nil {
		return err
	}

	select {
	case l.ready <- job:
		if q.opts.Hooks.OnEnqueue != nil {
			q.opts.Hooks.OnEnqueue(queueName, job)
		}
		return nil
	case <-q.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DequeueWithTimeout implements Queue. A timeout <= 0 waits until a job
// arrives, the context ends or the queue is closed.
func (q *InMemoryQueue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	l, err := q.lane(queueName)
	if err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case job := <-l.ready:
		job.Attempts++
		rec := &checkedOut{job: job}
		if q.opts.VisibilityTimeout > 0 {
			rec.expires = time.Now().Add(q.opts.VisibilityTimeout)
		}
		q.mu.Lock()
		l.checkout[job.RequestID] = rec
		q.mu.Unlock()
		if q.opts.Hooks.OnDequeue != nil {
			q.opts.Hooks.OnDequeue(queueName, job)
		}
		return job, nil
	case <-q.stopCh:
		return nil, ErrClosed
	case <-timeoutCh:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// checkin removes a checked-out job and returns it with its lane.
func (q *InMemoryQueue) checkin(queueName, requestID string) (*lane, *Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, nil, ErrClosed
	}
	l, ok := q.lanes[queueName]
	if !ok {
		return nil, nil, fmt.Errorf("job %s not checked out", requestID)
	}
	rec, ok := l.checkout[requestID]
	if !ok {
		return nil, nil, fmt.Errorf("job %s not checked out", requestID)
	}
	delete(l.checkout, requestID)
	return l, rec.job, nil
}

// Ack implements Queue
func (q *InMemoryQueue) Ack(ctx context.Context, queueName string, requestID string) error {
	_, job, err := q.checkin(queueName, requestID)
	if err != nil {
		return err
	}
	if q.opts.Hooks.OnAck != nil {
		q.opts.Hooks.OnAck(queueName, job)
	}
	return nil
}

// Nack implements Queue. A requeued job goes to the back of its queue.
func (q *InMemoryQueue) Nack(ctx context.Context, queueName string, requestID string, requeue bool) error {
	l, job, err := q.checkin(queueName, requestID)
	if err != nil {
		return err
	}
	if q.opts.Hooks.OnNack != nil {
		q.opts.Hooks.OnNack(queueName, job, requeue)
	}
	if requeue {
		return q.Enqueue(ctx, queueName, job)
	}
	if q.opts.DeadLetter {
		q.mu.Lock()
		l.dead = append(l.dead, job)
		q.mu.Unlock()
	}
	return nil
}

// DeadLetters returns the jobs Nack'ed without requeue when DeadLetter is set.
func (q *InMemoryQueue) DeadLetters(queueName string) []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	l, ok := q.lanes[queueName]
	if !ok {
		return nil
	}
	return append([]*Job(nil), l.dead...)
}

// Len returns the number of ready jobs. Checked-out jobs are not counted.
func (q *InMemoryQueue) Len(ctx context.Context, queueName string) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrClosed
	}
	l, ok := q.lanes[queueName]
	if !ok {
		return 0, nil
	}
	return len(l.ready), nil
}

// Close implements Queue. Channels are left open; blocked callers are
// released through stopCh.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.lanes = make(map[string]*lane)
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) expireLoop() {
	defer q.wg.Done()
	t := time.NewTicker(scanInterval)
	defer t.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-t.C:
			q.expire(now)
		}
	}
}

// expire hands expired checkouts out again. A full lane retries next tick.
func (q *InMemoryQueue) expire(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for queueName, l := range q.lanes {
		for id, rec := range l.checkout {
			if rec.expires.IsZero() || !now.After(rec.expires) {
				continue
			}
			select {
			case l.ready <- rec.job:
				delete(l.checkout, id)
				if q.opts.Hooks.OnRedeliver != nil {
					q.opts.Hooks.OnRedeliver(queueName, rec.job)
				}
			default:
				rec.expires = now.Add(scanInterval)
			}
		}
	}
}
