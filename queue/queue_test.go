package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	before := time.Now().UnixMilli()
	job := NewJob(json.RawMessage(`{"n":1}`))

	if job.RequestID == "" {
		t.Error("expected request id to be generated")
	}
	if string(job.Payload) != `{"n":1}` {
		t.Errorf("unexpected payload %s", job.Payload)
	}
	if job.CreatedAt < before {
		t.Errorf("createdAt %d earlier than %d", job.CreatedAt, before)
	}
	if other := NewJob(nil); other.RequestID == job.RequestID {
		t.Error("expected unique request ids")
	}
	if string(NewJob(nil).Payload) != "null" {
		t.Error("expected nil payload to encode as null")
	}
}

func TestJob_JSONFieldNames(t *testing.T) {
	b, err := json.Marshal(&Job{RequestID: "r1", Payload: json.RawMessage(`"x"`), CreatedAt: 5})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"requestId":"r1","payload":"x","createdAt":5}` {
		t.Errorf("unexpected encoding %s", b)
	}
}

func TestInMemoryQueue_EnqueueDequeue(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	ctx := context.Background()
	job := NewJob(json.RawMessage(`"test-input"`))

	if err := queue.Enqueue(ctx, "default", job); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	length, _ := queue.Len(ctx, "default")
	if length != 1 {
		t.Errorf("expected length 1, got %d", length)
	}

	dequeued, err := queue.DequeueWithTimeout(ctx, "default", time.Second)
	if err != nil {
		t.Fatalf("failed to dequeue: %v", err)
	}
	if dequeued.RequestID != job.RequestID {
		t.Errorf("expected job ID %s, got %s", job.RequestID, dequeued.RequestID)
	}
	if dequeued.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", dequeued.Attempts)
	}
	length, _ = queue.Len(ctx, "default")
	if length != 0 {
		t.Errorf("expected length 0, got %d", length)
	}
}

func TestInMemoryQueue_FIFO(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		job := NewJob(json.RawMessage(`1`))
		want = append(want, job.RequestID)
		if err := queue.Enqueue(ctx, DefaultName, job); err != nil {
			t.Fatal(err)
		}
	}
	for i, id := range want {
		got, err := queue.DequeueWithTimeout(ctx, DefaultName, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if got.RequestID != id {
			t.Fatalf("position %d: got %s want %s", i, got.RequestID, id)
		}
	}
}

func TestInMemoryQueue_DequeueTimeout(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	_, err := queue.DequeueWithTimeout(context.Background(), "default", 50*time.Millisecond)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestInMemoryQueue_DequeueContextCancel(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := queue.DequeueWithTimeout(ctx, "default", 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestInMemoryQueue_AckNack(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	ctx := context.Background()
	_ = queue.Enqueue(ctx, "default", NewJob(nil))
	dequeued, _ := queue.DequeueWithTimeout(ctx, "default", time.Second)

	if err := queue.Ack(ctx, "default", dequeued.RequestID); err != nil {
		t.Fatalf("failed to ack job: %v", err)
	}
	if err := queue.Ack(ctx, "default", dequeued.RequestID); err == nil {
		t.Error("expected error when acking non-pending job")
	}
}

func TestInMemoryQueue_Nack_Requeue(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	ctx := context.Background()
	_ = queue.Enqueue(ctx, "default", NewJob(nil))
	dequeued, _ := queue.DequeueWithTimeout(ctx, "default", time.Second)

	if err := queue.Nack(ctx, "default", dequeued.RequestID, true); err != nil {
		t.Fatalf("failed to nack job: %v", err)
	}
	length, _ := queue.Len(ctx, "default")
	if length != 1 {
		t.Errorf("expected length 1, got %d", length)
	}
	requeued, _ := queue.DequeueWithTimeout(ctx, "default", time.Second)
	if requeued.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", requeued.Attempts)
	}
}

func TestInMemoryQueue_MultipleQueues(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	ctx := context.Background()
	job1 := NewJob(json.RawMessage(`"input-1"`))
	job2 := NewJob(json.RawMessage(`"input-2"`))
	_ = queue.Enqueue(ctx, "queue1", job1)
	_ = queue.Enqueue(ctx, "queue2", job2)

	got2, _ := queue.DequeueWithTimeout(ctx, "queue2", time.Second)
	if got2.RequestID != job2.RequestID {
		t.Errorf("expected %s from queue2, got %s", job2.RequestID, got2.RequestID)
	}
	got1, _ := queue.DequeueWithTimeout(ctx, "queue1", time.Second)
	if got1.RequestID != job1.RequestID {
		t.Errorf("expected %s from queue1, got %s", job1.RequestID, got1.RequestID)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	queue := NewInMemoryQueue()
	ctx := context.Background()

	waiting := make(chan error, 1)
	go func() {
		_, err := queue.DequeueWithTimeout(ctx, "default", 0)
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-waiting:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked dequeue: expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked dequeue not released by Close")
	}

	if err := queue.Enqueue(ctx, "default", NewJob(nil)); !errors.Is(err, ErrClosed) {
		t.Errorf("enqueue after close: expected ErrClosed, got %v", err)
	}
	if _, err := queue.Len(ctx, "default"); !errors.Is(err, ErrClosed) {
		t.Errorf("len after close: expected ErrClosed, got %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
