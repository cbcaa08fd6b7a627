// Package server exposes a built definition over HTTP so a page shell can
// preview forms and their artifacts while the definition is edited.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-urlform/pkg/artifact"
)

// MaxBodyBytes bounds POST /render payloads.
const MaxBodyBytes = 1 << 20

// Option configures a Server.
type Option func(*Server)

// WithLogger routes request logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHooks sets the page hooks used by /assets and /urljsf.css.
func WithHooks(hooks artifact.Hooks) Option {
	return func(s *Server) {
		s.hooks = hooks
	}
}

// WithShutdownGrace bounds how long ListenAndServe waits for in-flight
// requests after its context ends.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.grace = d
		}
	}
}

// Server serves one builder. Swap replaces it after a rebuild.
type Server struct {
	mu      sync.RWMutex
	builder *artifact.Builder

	hooks  artifact.Hooks
	logger *slog.Logger
	grace  time.Duration
	router chi.Router
}

// New wires the routes for builder.
func New(builder *artifact.Builder, opts ...Option) *Server {
	s := &Server{
		builder: builder,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		grace:   5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/definition", s.handleDefinition)
	r.Get("/forms", s.handleForms)
	r.Post("/render", s.handleRender)
	r.Get("/style", s.handleStyle)
	r.Get("/assets", s.handleAssets)
	r.Get("/"+artifact.StyleAsset, s.handleStylesheet)
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Swap replaces the served builder.
func (s *Server) Swap(builder *artifact.Builder) {
	s.mu.Lock()
	s.builder = builder
	s.mu.Unlock()
}

func (s *Server) current() *artifact.Builder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builder
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()
	s.logger.Info("preview server listening", "addr", addr)

	select {
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
