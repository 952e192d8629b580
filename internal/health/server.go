// Package health reports the running bot's state over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"sphexbot/internal/config"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	addr    string
	tracker *Tracker
	logger  *slog.Logger
}

func NewServer(cfg config.HealthConfig, tracker *Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tracker: tracker,
		logger:  logger,
	}
}

// Handler routes:
//
//	GET /health            process is up
//	GET /ready             200 when ready, 503 with the reasons otherwise
//	GET /status            full Status
//	GET /status/{section}  one of gateways, router, processors, schedulers
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.tracker.Status())
	})
	mux.HandleFunc("GET /status/{section}", s.handleSection)
	return mux
}

type readiness struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := s.tracker.Status()
	if status.Ready {
		writeJSON(w, http.StatusOK, readiness{Status: "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "not_ready", Reasons: status.NotReady})
}

func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	status := s.tracker.Status()
	var body any
	switch section := r.PathValue("section"); section {
	case "gateways":
		body = status.Gateways
	case "router":
		if status.Router != nil {
			body = status.Router
		}
	case "processors":
		if status.Processors != nil {
			body = status.Processors
		}
	case "schedulers":
		if status.Schedulers != nil {
			body = status.Schedulers
		}
	}
	if body == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown status section " + strconv.Quote(r.PathValue("section"))})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start over an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("health server shutdown incomplete", "error", err)
		}
	})
	defer stop()

	s.logger.Info("health server started", "addr", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	s.logger.Info("health server stopped", "addr", listener.Addr().String())
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
