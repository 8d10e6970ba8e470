// Package server exposes the memory and world-state core over HTTP.
// Health and snapshot surfaces are shape tolerant: a degraded subsystem is
// reported inside the payload, never as a server error.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/redstack/redmem/internal/config"
	"github.com/redstack/redmem/internal/controlplane"
	"github.com/redstack/redmem/internal/drift"
	"github.com/redstack/redmem/internal/recall"
	"github.com/redstack/redmem/internal/store"
	"github.com/redstack/redmem/internal/world"
)

// Server holds the wired subsystems.
type Server struct {
	store    *store.SQLiteStore
	machine  *world.Machine
	gateway  *recall.Gateway // nil when semantic memory is off
	recorder *drift.Recorder
	control  *controlplane.Client // nil when unconfigured
	cfg      *config.Config
	logger   *slog.Logger
}

// New wires the server. Gateway and control may be nil.
func New(st *store.SQLiteStore, machine *world.Machine, gateway *recall.Gateway,
	recorder *drift.Recorder, control *controlplane.Client,
	cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		machine:  machine,
		gateway:  gateway,
		recorder: recorder,
		control:  control,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler builds the route table wrapped in the trace middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/memory/put", s.handleMemoryPut)
	mux.HandleFunc("POST /v1/memory/query", s.handleMemoryQuery)
	mux.HandleFunc("GET /v1/memory/stats", s.handleMemoryStats)
	mux.HandleFunc("GET /v1/memory/{id}", s.handleMemoryGet)
	mux.HandleFunc("GET /v1/audit/tail", s.handleAuditTail)
	mux.HandleFunc("GET /v1/trace/{id}", s.handleTrace)
	mux.HandleFunc("GET /v1/world/snapshot", s.handleWorldSnapshot)
	mux.HandleFunc("POST /v1/world/transition", s.handleWorldTransition)
	mux.HandleFunc("GET /v1/world/events", s.handleWorldEvents)
	mux.HandleFunc("GET /v1/world/entities", s.handleWorldEntities)
	mux.HandleFunc("POST /v1/world/entities", s.handleEntityUpsert)
	mux.HandleFunc("GET /v1/world/drift", s.handleWorldDrift)
	mux.HandleFunc("POST /v1/recall", s.handleRecall)

	return s.traceMiddleware(mux)
}

type traceKey struct{}

// traceMiddleware attaches a trace id to every request: the caller's
// X-Trace-Id when present, a fresh ULID otherwise.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := r.Header.Get("X-Trace-Id")
		if trace == "" {
			trace = "trace-" + ulid.Make().String()
		}
		w.Header().Set("X-Trace-Id", trace)
		ctx := context.WithValue(r.Context(), traceKey{}, trace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func traceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
