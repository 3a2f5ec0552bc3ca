// Package events defines the fixed-schema events the engine emits for the
// external audit/observability sink, and a Bus that fans them out.
package events

import (
	"time"

	"autotrader/internal/domain"
)

// Type names an event kind.
type Type string

const (
	EntryTriggered  Type = "ENTRY_TRIGGERED"
	ExitTriggered   Type = "EXIT_TRIGGERED"
	OrderSubmitted  Type = "ORDER_SUBMITTED"
	OrderFilled     Type = "ORDER_FILLED"
	OrderCanceled   Type = "ORDER_CANCELED"
	OrderRejected   Type = "ORDER_REJECTED"
	CooldownStarted Type = "COOLDOWN_STARTED"
	CooldownEnded   Type = "COOLDOWN_ENDED"
	CycleComplete   Type = "CYCLE_COMPLETE"
)

// Event is the wire format for every emitted event. Fields that do not apply
// to a type are left zero and omitted from JSON.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	DryRun    bool      `json:"dry_run,omitempty"`

	Ticker        string         `json:"ticker,omitempty"`
	Side          domain.Side    `json:"side,omitempty"`
	Quantity      float64        `json:"quantity,omitempty"`
	EntryPrice    float64        `json:"entry_price,omitempty"`
	StopLoss      float64        `json:"stop_loss,omitempty"`
	Target        float64        `json:"target,omitempty"`
	Price         float64        `json:"price,omitempty"`
	PnL           float64        `json:"pnl,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Urgency       domain.Urgency `json:"urgency,omitempty"`
	StrategyName  string         `json:"strategy_name,omitempty"`
	OrderID       string         `json:"order_id,omitempty"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at,omitempty"`

	// CYCLE_COMPLETE only.
	Cycle      int64 `json:"cycle,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`
	Exits      int   `json:"exits,omitempty"`
	Entries    int   `json:"entries,omitempty"`
	Errors     int   `json:"errors,omitempty"`
}

// New returns an event of type t stamped with a fresh ID and timestamp.
func New(t Type, ts time.Time) Event {
	return Event{ID: NewID(ts), Type: t, Timestamp: ts}
}

// Sink consumes emitted events.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(Event) {})
