package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autotrader/internal/events"
	"autotrader/internal/store"
)

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/scheduler", s.handleScheduler)
	if s.hub != nil {
		mux.HandleFunc("GET /v1/events/stream", s.hub.HandleWebSocket)
	}
}

// Handler returns an http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.refreshHealth()
	if s.src.Status().Stopped {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.src.Status())
}

// handleEvents lists journaled events, newest first. Query parameters:
// type, ticker, since (RFC 3339) and limit (default 100).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "event journal not configured")
		return
	}

	q := store.EventQuery{
		Type:   events.Type(strings.ToUpper(r.URL.Query().Get("type"))),
		Ticker: strings.ToUpper(r.URL.Query().Get("ticker")),
		Limit:  100,
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
			return
		}
		q.Since = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	evs, err := s.opts.Journal.ListEvents(r.Context(), q)
	if err != nil {
		s.log.Error("listing events", "error", err)
		writeError(w, http.StatusInternalServerError, "listing events failed")
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, evs)
}

func (s *Server) handleScheduler(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Stages == nil {
		writeError(w, http.StatusNotFound, "scheduler not configured")
		return
	}
	writeJSON(w, s.opts.Stages())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
