package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/pkg/events"
	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/metrics"
	"github.com/wardenhq/warden/pkg/ticket"
	"github.com/wardenhq/warden/pkg/types"
)

// Server exposes the ticket store over HTTP for diagnosis workers and
// CLIs. The monitor loop writes tickets; this surface reads them and
// applies the external-actor transitions (acknowledge, diagnose,
// hold/release).
type Server struct {
	store  ticket.Store
	broker *events.Broker
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates the ticket API server
func NewServer(store ticket.Store, broker *events.Broker) *Server {
	s := &Server{
		store:  store,
		broker: broker,
		logger: log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets", s.handleList)
	mux.HandleFunc("GET /tickets/{id}", s.handleGet)
	mux.HandleFunc("POST /tickets/{id}/ack", s.handleAcknowledge)
	mux.HandleFunc("POST /tickets/{id}/diagnosis", s.handleDiagnosis)
	mux.HandleFunc("POST /tickets/{id}/hold", s.handleHold)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", metrics.HealthHandler)
	mux.HandleFunc("GET /readyz", metrics.ReadinessHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	s.http = &http.Server{
		Handler:           s.instrument(mux),
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
	s.logger.Info().Str("addr", addr).Msg("ticket API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ticket API server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := types.TicketStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.TicketStatusOpen, types.TicketStatusAcknowledged,
		types.TicketStatusDiagnosed, types.TicketStatusResolved:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status filter: %s", status))
		return
	}

	tickets, err := s.store.List(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tickets == nil {
		tickets = []*types.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Acknowledge(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(events.EventTicketAcknowledged, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("diagnosis text must not be empty"))
		return
	}

	t, err := s.store.AttachDiagnosis(r.PathValue("id"), req.Text)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(events.EventTicketDiagnosed, t)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Held bool `json:"held"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	t, err := s.store.SetHeld(r.PathValue("id"), req.Held)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if req.Held {
		s.publish(events.EventTicketHeld, t)
	} else {
		s.publish(events.EventTicketReleased, t)
	}
	writeJSON(w, http.StatusOK, t)
}

// handleEvents streams broker events as newline-delimited JSON until
// the client disconnects
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("event streaming is not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case event, open := <-sub:
			if !open {
				return
			}
			if err := enc.Encode(event); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) publish(eventType events.EventType, t *types.Ticket) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:     eventType,
		TicketID: t.ID,
		Metadata: map[string]string{
			"invariant":     t.InvariantName,
			"violation_key": t.ViolationKey,
		},
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ticket.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	// Invalid transitions (ack on resolved, etc.) are client errors
	writeError(w, http.StatusConflict, err)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
