package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KamdynS/streamdemo/chat"
	"github.com/KamdynS/streamdemo/config"
	"github.com/KamdynS/streamdemo/delay"
	"github.com/KamdynS/streamdemo/observability"
	"github.com/KamdynS/streamdemo/push"
	"github.com/KamdynS/streamdemo/queue"
	"github.com/KamdynS/streamdemo/server"
	"github.com/KamdynS/streamdemo/server/streamhttp"
	"github.com/KamdynS/streamdemo/users"
	"github.com/KamdynS/streamdemo/worker"
)

func run(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hooks := observability.LogHooks()

	q, err := newQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer q.Close()

	hub := push.NewHub(push.Options{})
	defer hub.Close()

	w, err := worker.New(worker.Config{
		Queue:        q,
		QueueName:    cfg.Queue.Name,
		Processor:    worker.SimulatedProcessor{Duration: cfg.Queue.JobDuration},
		Publisher:    hub,
		Hooks:        hooks,
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	directory := users.NewDirectory(cfg.Users.Count, cfg.Users.Seed)
	log.Printf("[Main] Generated %d users", directory.Len())

	streamer := streamhttp.NewStreamer(streamhttp.Options{
		Chat: chat.Options{
			Model:      cfg.Stream.Model,
			Paragraphs: cfg.Stream.Paragraphs,
			Sleeper:    delay.Real,
			ThinkMin:   cfg.Stream.ThinkMin,
			ThinkMax:   cfg.Stream.ThinkMax,
			TokenMin:   cfg.Stream.TokenMin,
			TokenMax:   cfg.Stream.TokenMax,
		},
		Raw:           streamhttp.RawOptions{CharDelay: cfg.Stream.RawCharDelay, Sleeper: delay.Real},
		RawParagraphs: cfg.Stream.RawParagraphs,
		HighWater:     cfg.Stream.HighWater,
		Hooks:         hooks,
	})

	srv, err := server.New(server.Config{
		Port:        cfg.Server.Port,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		Streamer:    streamer,
		Users:       directory,
		Queue:       q,
		QueueName:   cfg.Queue.Name,
		Worker:      w,
		Push:        hub,
		SubmitRate:  cfg.Server.SubmitRate,
		SubmitBurst: cfg.Server.SubmitBurst,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// The worker outlives the signal so an in-flight job can finish during
	// Stop.
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		stopWorker(w, cfg)
		return err
	case <-ctx.Done():
	}

	log.Printf("[Main] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}
	if err := w.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker: %w", err))
	}
	if err := <-errCh; err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func stopWorker(w *worker.Worker, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		log.Printf("[Main] stop worker: %v", err)
	}
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return queue.NewInMemoryQueueWithOptions(queue.Options{
			VisibilityTimeout: cfg.VisibilityTimeout,
			DeadLetter:        cfg.DeadLetter,
		}), nil
	case config.BackendRedis:
		q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis queue: %w", err)
		}
		return q, nil
	case config.BackendSQS:
		sc := queue.DefaultSQSConfig()
		sc.QueueURL = cfg.SQS.QueueURL
		sc.Region = cfg.SQS.Region
		sc.Endpoint = cfg.SQS.Endpoint
		sc.FIFO = cfg.SQS.FIFO
		if cfg.SQS.WaitTimeSeconds > 0 {
			sc.WaitTimeSeconds = cfg.SQS.WaitTimeSeconds
		}
		if cfg.SQS.VisibilityTimeout > 0 {
			sc.VisibilityTimeout = cfg.SQS.VisibilityTimeout
		}
		q, err := queue.NewSQSQueue(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("connect sqs queue: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
