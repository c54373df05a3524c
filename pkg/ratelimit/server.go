package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/pkg/log"
)

// Server exposes the limiter over HTTP for the fleet's API callers
type Server struct {
	limiter *Limiter
	http    *http.Server
	logger  zerolog.Logger
}

// CheckRequest is the body of POST /check
type CheckRequest struct {
	Key      string `json:"key"`
	Limit    int    `json:"limit"`
	WindowMS int64  `json:"window_ms"`
}

// NewServer creates an HTTP front for the limiter
func NewServer(limiter *Limiter) *Server {
	s := &Server{
		limiter: limiter,
		logger:  log.WithComponent("ratelimit-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /check", s.handleCheck)
	mux.HandleFunc("GET /counters/{key}", s.handleGetCounter)
	mux.HandleFunc("POST /counters/{key}/reset", s.handleResetCounter)
	mux.HandleFunc("PUT /limits/{key}", s.handleUpdateLimit)
	mux.HandleFunc("GET /limits/{key}", s.handleGetLimit)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler (used by tests)
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	s.logger.Info().Str("addr", addr).Msg("rate limiter API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rate limiter server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("key must not be empty"))
		return
	}

	res := s.limiter.Check(req.Key, req.Limit, req.WindowMS)
	status := http.StatusOK
	if !res.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	count, err := s.limiter.GetCounter(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":   key,
		"count": count,
	})
}

func (s *Server) handleResetCounter(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	reset, err := s.limiter.ResetCounter(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func (s *Server) handleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var lim Limit
	if err := json.NewDecoder(r.Body).Decode(&lim); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.limiter.UpdateLimit(key, lim.Limit, lim.WindowMS); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Info().Str("key", key).Int("limit", lim.Limit).
		Int64("window_ms", lim.WindowMS).Msg("limit override updated")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":       key,
		"limit":     lim.Limit,
		"window_ms": lim.WindowMS,
	})
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	lim, err := s.limiter.GetLimit(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":       key,
		"limit":     lim.Limit,
		"window_ms": lim.WindowMS,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.limiter.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
