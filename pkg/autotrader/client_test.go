package autotrader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/engine"
	"autotrader/internal/events"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}

	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %q", c.baseURL)
	}

	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(engine.Status{
			DryRun:    true,
			Positions: []domain.TrackedPosition{{Ticker: "AAPL", Quantity: 10}},
		})
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned unexpected error: %v", err)
	}
	if !st.DryRun || len(st.Positions) != 1 || st.Positions[0].Ticker != "AAPL" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestEventsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]events.Event{{ID: "1", Type: events.OrderFilled, Ticker: "MSFT"}})
	}))
	defer srv.Close()

	evs, err := NewClient(srv.URL).Events(context.Background(), EventFilter{
		Type:   events.OrderFilled,
		Ticker: "MSFT",
		Since:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("Events returned unexpected error: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != events.OrderFilled {
		t.Errorf("unexpected events: %+v", evs)
	}
	for _, want := range []string{"type=ORDER_FILLED", "ticker=MSFT", "limit=10", "since=2025-03-10T00%3A00%3A00Z"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestHealthStopped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"stopped"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stopped") {
		t.Errorf("Health error = %v, want stopped", err)
	}
}
