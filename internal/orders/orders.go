// Package orders owns order lifecycle against the broker: tradability
// checks, bracket entry submission, bounded cancel-then-close, and
// idempotent client order identifiers.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
)

var (
	// ErrOrdersNotCleared is returned by ClosePosition when resting orders
	// for the ticker survive the cancellation deadline. The close is not
	// attempted in that case.
	ErrOrdersNotCleared = errors.New("open orders did not clear before timeout")
	// ErrInvalidParams is returned for bracket parameters that cannot form a
	// valid order.
	ErrInvalidParams = errors.New("invalid order parameters")
)

// Defaults for the cancellation loop.
const (
	DefaultCancelTimeout = 10 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
)

// Options configures a Manager.
type Options struct {
	DryRun        bool
	CancelTimeout time.Duration
	PollInterval  time.Duration
	TimeInForce   domain.TimeInForce
}

// Manager submits and cancels orders through a broker.
type Manager struct {
	broker        broker.Broker
	dryRun        bool
	cancelTimeout time.Duration
	pollInterval  time.Duration
	tif           domain.TimeInForce
	log           *slog.Logger
}

// NewManager creates a Manager. Zero durations take the package defaults.
func NewManager(b broker.Broker, opts Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if opts.CancelTimeout <= 0 {
		opts.CancelTimeout = DefaultCancelTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TimeInForce == "" {
		opts.TimeInForce = domain.TimeInForceDay
	}
	return &Manager{
		broker:        b,
		dryRun:        opts.DryRun,
		cancelTimeout: opts.CancelTimeout,
		pollInterval:  opts.PollInterval,
		tif:           opts.TimeInForce,
		log:           log.With("component", "orders"),
	}
}

// DryRun reports whether broker mutations are suppressed.
func (m *Manager) DryRun() bool { return m.dryRun }

// ValidateAsset checks the ticker can be traded in the requested direction.
// A lookup failure is reported as a rejection reason, not an error.
func (m *Manager) ValidateAsset(ctx context.Context, ticker string, side domain.Side) (bool, string) {
	asset, err := m.broker.GetAsset(ctx, ticker)
	if err != nil {
		return false, fmt.Sprintf("asset lookup failed: %v", err)
	}
	if !asset.Tradable {
		return false, fmt.Sprintf("%s is not tradable", ticker)
	}
	if side == domain.SideShort && !asset.Shortable {
		return false, fmt.Sprintf("%s is not shortable", ticker)
	}
	return true, ""
}

// SubmitBracketOrder places a limit entry with attached take-profit and
// stop-loss legs. In dry-run mode it returns (nil, nil) without contacting
// the broker. params.ClientOrderID is filled in when empty.
func (m *Manager) SubmitBracketOrder(ctx context.Context, params *domain.OrderParams) (*domain.Order, error) {
	if err := validateParams(*params); err != nil {
		return nil, err
	}
	if params.ClientOrderID == "" {
		params.ClientOrderID = GenerateClientOrderID(params.StrategyName, params.Ticker, params.Side)
	}

	req := domain.OrderRequest{
		Symbol:        params.Ticker,
		Qty:           params.Quantity,
		Side:          params.Side.EntryOrderSide(),
		Type:          domain.OrderTypeLimit,
		TimeInForce:   m.tif,
		LimitPrice:    RoundPrice(params.EntryPrice),
		Class:         domain.OrderClassBracket,
		TakeProfit:    RoundPrice(params.Target),
		StopLoss:      RoundPrice(params.StopLoss),
		ClientOrderID: params.ClientOrderID,
	}
	log := m.log.With("ticker", params.Ticker, "client_order_id", params.ClientOrderID)

	if m.dryRun {
		log.Info("dry run: bracket order not submitted",
			"side", req.Side, "qty", req.Qty, "limit", req.LimitPrice,
			"take_profit", req.TakeProfit, "stop_loss", req.StopLoss)
		return nil, nil
	}

	order, err := m.broker.SubmitOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submitting bracket for %s: %w", params.Ticker, err)
	}
	log.Info("bracket order submitted", "order_id", order.ID, "status", order.Status)
	return order, nil
}

func validateParams(p domain.OrderParams) error {
	if p.Ticker == "" || p.Quantity <= 0 {
		return fmt.Errorf("%w: ticker %q qty %.4f", ErrInvalidParams, p.Ticker, p.Quantity)
	}
	if p.Target <= 0 {
		return fmt.Errorf("%w: bracket requires a target", ErrInvalidParams)
	}
	plan := domain.TradePlan{Side: p.Side, Size: p.Quantity, EntryPrice: p.EntryPrice, StopLoss: p.StopLoss, Target: p.Target}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// ClosePosition liquidates ticker. With cancelOrders set it first clears any
// resting orders (bracket legs would otherwise hold the shares) and returns
// ErrOrdersNotCleared without closing if they survive the timeout. In
// dry-run mode it returns (nil, nil).
func (m *Manager) ClosePosition(ctx context.Context, ticker string, cancelOrders bool) (*domain.Order, error) {
	if m.dryRun {
		m.log.Info("dry run: position not closed", "ticker", ticker)
		return nil, nil
	}
	if cancelOrders {
		if err := m.CancelOpenOrders(ctx, ticker); err != nil {
			return nil, err
		}
	}
	order, err := m.broker.ClosePosition(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("closing %s: %w", ticker, err)
	}
	m.log.Info("close order submitted", "ticker", ticker, "order_id", order.ID)
	return order, nil
}

// CancelOpenOrders cancels every open order for ticker, polling until none
// remain or the cancel timeout elapses. Individual cancel failures are
// retried on the next poll.
func (m *Manager) CancelOpenOrders(ctx context.Context, ticker string) error {
	deadline := time.Now().Add(m.cancelTimeout)
	for attempt := 1; ; attempt++ {
		open, err := m.broker.GetOrders(ctx, domain.OrderFilter{Status: "open", Symbols: []string{ticker}})
		if err != nil {
			m.log.Warn("listing open orders failed", "ticker", ticker, "attempt", attempt, "error", err)
		} else {
			open = onlyTicker(open, ticker)
			if len(open) == 0 {
				return nil
			}
			for _, o := range open {
				if err := m.broker.CancelOrder(ctx, o.ID); err != nil {
					m.log.Warn("cancel failed", "ticker", ticker, "order_id", o.ID, "error", err)
				}
			}
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s after %s: %w", ticker, m.cancelTimeout, ErrOrdersNotCleared)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func onlyTicker(orders []domain.Order, ticker string) []domain.Order {
	out := orders[:0]
	for _, o := range orders {
		if o.Symbol == ticker && o.Status.IsOpen() {
			out = append(out, o)
		}
	}
	return out
}

// CancelOrder cancels a single order by broker id.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) error {
	if m.dryRun {
		return nil
	}
	if err := m.broker.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("canceling %s: %w", orderID, err)
	}
	return nil
}

// RoundPrice rounds to cents at or above $1 and to four decimals below.
func RoundPrice(price float64) float64 {
	places := int32(2)
	if price < 1 {
		places = 4
	}
	return decimal.NewFromFloat(price).Round(places).InexactFloat64()
}

// GenerateClientOrderID returns "{strategy}_{ticker}_{side}_{uuid}".
func GenerateClientOrderID(strategyName, ticker string, side domain.Side) string {
	if strategyName == "" {
		strategyName = domain.StrategyUnknown
	}
	return fmt.Sprintf("%s_%s_%s_%s", strategyName, strings.ToUpper(ticker), side, uuid.NewString())
}
