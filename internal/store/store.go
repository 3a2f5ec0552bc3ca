// Package store persists the trader's durable state: engine checkpoints, the
// event journal, and the archive of closed positions.
package store

import (
	"context"
	"errors"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/events"
)

// ErrNoCheckpoint is returned by LoadCheckpoint when nothing has been saved.
var ErrNoCheckpoint = errors.New("no checkpoint stored")

// EventJournal persists emitted events and reads them back.
type EventJournal interface {
	// AppendEvent stores e. Re-appending an event with the same ID is a no-op.
	AppendEvent(ctx context.Context, e events.Event) error

	// ListEvents returns the newest events matching q, newest first.
	ListEvents(ctx context.Context, q EventQuery) ([]events.Event, error)
}

// EventQuery filters ListEvents. Zero fields match everything.
type EventQuery struct {
	Type   events.Type
	Ticker string
	Since  time.Time
	Limit  int
}

// ClosedPositionStore archives positions once they are closed.
type ClosedPositionStore interface {
	// AppendClosed adds closed positions to the archive.
	AppendClosed(ctx context.Context, closed []domain.TrackedPosition) error

	// ReadClosed returns archived positions closed within [start, end].
	ReadClosed(ctx context.Context, start, end time.Time) ([]domain.TrackedPosition, error)
}
