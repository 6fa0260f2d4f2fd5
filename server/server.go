// Package server wires the streaming, users and queue endpoints into one HTTP
// API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/KamdynS/streamdemo/queue"
	"github.com/KamdynS/streamdemo/server/streamhttp"
	"github.com/KamdynS/streamdemo/users"
)

// maxSubmitBody bounds the size of a queue submission.
const maxSubmitBody = 1 << 20

// BusyReporter reports whether a job is being processed.
type BusyReporter interface {
	Busy() bool
}

// Server provides the HTTP API.
type Server struct {
	streamer   *streamhttp.Streamer
	users      *users.Directory
	queue      queue.Queue
	queueName  string
	worker     BusyReporter
	push       http.Handler
	limiter    *rate.Limiter
	router     chi.Router
	httpServer *http.Server
	port       int
}

// Config holds server configuration
type Config struct {
	Port        int
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	Streamer  *streamhttp.Streamer
	Users     *users.Directory
	Queue     queue.Queue
	QueueName string
	// Worker is optional; without it isProcessing is always false.
	Worker BusyReporter
	// Push serves GET /ws when set.
	Push http.Handler

	// SubmitRate is submissions per second; 0 disables throttling.
	SubmitRate  float64
	SubmitBurst int
}

// New creates a new API server
func New(cfg Config) (*Server, error) {
	if cfg.Streamer == nil {
		return nil, fmt.Errorf("streamer is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("users directory is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.QueueName == "" {
		cfg.QueueName = queue.DefaultName
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}

	s := &Server{
		streamer:  cfg.Streamer,
		users:     cfg.Users,
		queue:     cfg.Queue,
		queueName: cfg.QueueName,
		worker:    cfg.Worker,
		push:      cfg.Push,
		port:      cfg.Port,
	}
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}

	s.router = s.routes()
	// Streams run for as long as the client stays, so there is no write
	// timeout.
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}

	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.push != nil {
		r.Get("/ws", s.push.ServeHTTP)
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/stream", func(st chi.Router) {
			st.Get("/raw", s.streamer.RawHandler)
			st.Get("/raw-http-chunked", s.streamer.RawHandler)
			st.Get("/ndjson", s.streamer.NDJSONHandler)
			st.Get("/sse", s.streamer.SSEHandler)
		})
		api.Get("/users", s.handleUsers)
		api.Get("/users/metadata", s.handleUsersMetadata)
		api.Post("/queue/submit", s.handleSubmit)
		api.Get("/queue/status", s.handleQueueStatus)
	})
	return r
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("[Server] Starting API server on port %d", s.port)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("[Server] Stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// SubmitRequest is the body of POST /api/queue/submit.
type SubmitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse acknowledges an enqueued job.
type SubmitResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"requestId"`
	QueuedAt  int64  `json:"queuedAt"`
}

// QueueStatusResponse reports queue depth and worker activity.
type QueueStatusResponse struct {
	QueueSize    int  `json:"queueSize"`
	IsProcessing bool `json:"isProcessing"`
}

// handleUsers handles GET /api/users
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	q, err := users.ParseQuery(r.URL.Query())
	if err != nil {
		var verr *users.ValidationError
		if errors.As(err, &verr) {
			s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Details: verr.Details()})
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, s.users.Find(q))
}

// handleUsersMetadata handles GET /api/users/metadata
func (s *Server) handleUsersMetadata(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.users.Metadata())
}

// handleSubmit handles POST /api/queue/submit
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", strconv.Itoa(1))
		s.sendError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req SubmitRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job := queue.NewJob(req.Payload)
	if err := s.queue.Enqueue(r.Context(), s.queueName, job); err != nil {
		log.Printf("[Server] enqueue %s failed: %v", job.RequestID, err)
		s.sendError(w, http.StatusServiceUnavailable, "failed to enqueue job")
		return
	}

	s.sendJSON(w, http.StatusAccepted, SubmitResponse{
		Status:    "pending",
		RequestID: job.RequestID,
		QueuedAt:  job.CreatedAt,
	})
}

// handleQueueStatus handles GET /api/queue/status
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Len(r.Context(), s.queueName)
	if err != nil {
		s.sendError(w, http.StatusServiceUnavailable, fmt.Sprintf("failed to read queue: %v", err))
		return
	}
	resp := QueueStatusResponse{QueueSize: n}
	if s.worker != nil {
		resp.IsProcessing = s.worker.Busy()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
