// Package broker defines the Broker interface the execution engine consumes
// and provides an Alpaca implementation plus an in-memory simulator.
package broker

import (
	"context"
	"errors"
	"net"

	"autotrader/internal/domain"
)

var (
	// ErrTransient marks failures worth retrying on a later cycle (rate
	// limits, 5xx responses, network errors).
	ErrTransient = errors.New("transient broker error")
	// ErrNotFound is returned when the broker has no such asset, order or
	// position.
	ErrNotFound = errors.New("not found")
	// ErrRejected is returned when the broker refuses an order outright.
	ErrRejected = errors.New("order rejected")
)

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Broker abstracts the brokerage operations the engine depends on.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetAllPositions returns every open position held at the brokerage.
	GetAllPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// GetAsset returns tradability flags for a ticker.
	GetAsset(ctx context.Context, ticker string) (*domain.Asset, error)

	// SubmitOrder sends an order to the brokerage.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error)

	// ClosePosition liquidates the whole position in ticker.
	ClosePosition(ctx context.Context, ticker string) (*domain.Order, error)

	// GetOrders lists orders matching the filter.
	GetOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error
}

// Clock is implemented by brokers that can report the market session.
type Clock interface {
	GetClock(ctx context.Context) (*domain.MarketClock, error)
}
