package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a simple LIST-based queue using Redis.
// Producer: LPUSH; consumer: BLMOVE into an inflight list; Ack removes the
// payload from the inflight list and Nack moves it back or drops it.
type RedisQueue struct {
	rdb        redis.UniversalClient
	ns         string
	popTO      time.Duration
	ownsClient bool

	mu       sync.Mutex
	inflight map[string]inflightJob
}

// inflightJob pairs the exact bytes sitting in the inflight list with the
// decoded job, whose Attempts is ahead of the stored copy.
type inflightJob struct {
	raw string
	job Job
}

var _ Queue = (*RedisQueue)(nil)

// RedisConfig configures the RedisQueue.
type RedisConfig struct {
	Addr       string
	Username   string
	Password   string
	DB         int
	Namespace  string
	PopTimeout time.Duration
}

// NewRedisQueue creates a Redis-backed queue and checks the connection.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	q := NewRedisQueueFromClient(rdb, cfg)
	q.ownsClient = true
	return q, nil
}

// NewRedisQueueFromClient wraps a caller-managed client. Close does not
// close it.
func NewRedisQueueFromClient(rdb redis.UniversalClient, cfg RedisConfig) *RedisQueue {
	if cfg.PopTimeout == 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "streamdemo"
	}
	return &RedisQueue{rdb: rdb, ns: cfg.Namespace, popTO: cfg.PopTimeout, inflight: make(map[string]inflightJob)}
}

func (q *RedisQueue) keyJobs(queueName string) string {
	return fmt.Sprintf("%s:queue:%s", q.ns, queueName)
}
func (q *RedisQueue) keyInFlight(queueName string) string {
	return fmt.Sprintf("%s:inflight:%s", q.ns, queueName)
}

// Enqueue adds a job to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.wrap(q.rdb.LPush(ctx, q.keyJobs(queueName), string(b)).Err())
}

// DequeueWithTimeout pops the oldest job, moving it to the inflight list.
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	if timeout <= 0 {
		timeout = q.popTO
	}
	payload, err := q.rdb.BLMove(ctx, q.keyJobs(queueName), q.keyInFlight(queueName), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, q.wrap(err)
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		_ = q.rdb.LRem(ctx, q.keyInFlight(queueName), 1, payload).Err()
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job.Attempts++
	q.mu.Lock()
	q.inflight[job.RequestID] = inflightJob{raw: payload, job: job}
	q.mu.Unlock()
	return &job, nil
}

// Ack removes a job from the inflight list.
func (q *RedisQueue) Ack(ctx context.Context, queueName string, requestID string) error {
	in, ok := q.takeInflight(requestID)
	if !ok {
		return fmt.Errorf("job %s not found in pending", requestID)
	}
	return q.wrap(q.rdb.LRem(ctx, q.keyInFlight(queueName), 1, in.raw).Err())
}

// Nack removes a job from the inflight list and, with requeue, pushes it
// back so it is the next one dequeued. The requeued copy carries the
// attempts made so far.
func (q *RedisQueue) Nack(ctx context.Context, queueName string, requestID string, requeue bool) error {
	in, ok := q.takeInflight(requestID)
	if !ok {
		return fmt.Errorf("job %s not found in pending", requestID)
	}
	var again []byte
	if requeue {
		b, err := json.Marshal(in.job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		again = b
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.keyInFlight(queueName), 1, in.raw)
	if requeue {
		pipe.RPush(ctx, q.keyJobs(queueName), string(again))
	}
	_, err := pipe.Exec(ctx)
	return q.wrap(err)
}

// Len returns pending jobs length.
func (q *RedisQueue) Len(ctx context.Context, queueName string) (int, error) {
	n, err := q.rdb.LLen(ctx, q.keyJobs(queueName)).Result()
	return int(n), q.wrap(err)
}

// Close closes the Redis client if the queue created it.
func (q *RedisQueue) Close() error {
	if q.ownsClient {
		return q.rdb.Close()
	}
	return nil
}

func (q *RedisQueue) takeInflight(requestID string) (inflightJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	in, ok := q.inflight[requestID]
	delete(q.inflight, requestID)
	return in, ok
}

func (q *RedisQueue) wrap(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}
