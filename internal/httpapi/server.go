// Package httpapi exposes the batch queue and library scanner to the
// editor frontend over JSON plus an SSE job stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"subforge/internal/batch"
	"subforge/internal/library"
)

type Server struct {
	scanner     *library.Scanner
	coordinator *batch.Coordinator

	// defaultBackend is used when an enqueue request names none.
	defaultBackend string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithDefaultBackend(kind string) Option {
	return func(s *Server) {
		s.defaultBackend = kind
	}
}

func NewServer(scanner *library.Scanner, coordinator *batch.Coordinator, opts ...Option) *Server {
	s := &Server{
		scanner:        scanner,
		coordinator:    coordinator,
		defaultBackend: "http",
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/batch/start", s.handleBatchStart)
	s.mux.HandleFunc("/api/batch/cancel", s.handleBatchCancel)
	s.mux.HandleFunc("/api/batch/stats", s.handleBatchStats)
	s.mux.HandleFunc("/api/library", s.handleLibrary)
}
