// Package autotrader is a Go client for the autotrader ops API.
package autotrader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/scheduler"
)

// Client talks to a running autotrader over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new autotrader API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// EventFilter narrows Events. Zero fields match everything.
type EventFilter struct {
	Type   events.Type
	Ticker string
	Since  time.Time
	Limit  int
}

// Health returns nil when the engine reports healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// Status retrieves the engine snapshot.
func (c *Client) Status(ctx context.Context) (*engine.Status, error) {
	var st engine.Status
	if err := c.get(ctx, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Events retrieves journaled events, newest first.
func (c *Client) Events(ctx context.Context, f EventFilter) ([]events.Event, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Ticker != "" {
		q.Set("ticker", f.Ticker)
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out []events.Event
	if err := c.get(ctx, "/v1/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Scheduler retrieves the pipeline stage history.
func (c *Client) Scheduler(ctx context.Context) ([]scheduler.StageStatus, error) {
	var out []scheduler.StageStatus
	if err := c.get(ctx, "/v1/scheduler", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error  string `json:"error"`
			Status string `json:"status"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil {
			if apiErr.Error != "" {
				msg = apiErr.Error
			} else if apiErr.Status != "" {
				msg = apiErr.Status
			}
		}
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
