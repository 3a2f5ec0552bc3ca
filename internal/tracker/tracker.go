// Package tracker keeps the local, enriched mirror of broker positions and
// reconciles it against broker truth. The broker always wins: positions it
// reports are created or refreshed locally, and local positions it no longer
// reports are retired to closed history.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
)

// Tracker is the position tracker. It is safe for concurrent use, although
// the engine only mutates it from its single cycle goroutine.
type Tracker struct {
	mu     sync.RWMutex
	broker broker.Broker
	open   map[string]*domain.TrackedPosition
	closed []domain.TrackedPosition
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Tracker reconciling against b.
func New(b broker.Broker, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		broker: b,
		open:   make(map[string]*domain.TrackedPosition),
		log:    log.With("component", "tracker"),
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SyncFromBroker pulls every broker position into the tracker. It returns the
// sorted tickers whose membership or size changed: positions discovered at
// the broker, positions whose quantity or side changed, and positions retired
// because the broker no longer reports them. Price-only refreshes are not
// reported as changes.
func (t *Tracker) SyncFromBroker(ctx context.Context) ([]string, error) {
	positions, err := t.broker.GetAllPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncing positions: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	changed := make(map[string]struct{})
	seen := make(map[string]struct{}, len(positions))

	for _, bp := range positions {
		if bp.Qty <= 0 {
			continue
		}
		seen[bp.Symbol] = struct{}{}

		local, ok := t.open[bp.Symbol]
		if !ok {
			local = &domain.TrackedPosition{
				Ticker:        bp.Symbol,
				Side:          bp.Side,
				Quantity:      bp.Qty,
				AvgEntryPrice: bp.AvgEntryPrice,
				StrategyName:  domain.StrategyUnknown,
				OpenedAt:      now,
				Notes:         "discovered via broker reconciliation",
			}
			t.open[bp.Symbol] = local
			changed[bp.Symbol] = struct{}{}
			t.log.Info("discovered broker position", "ticker", bp.Symbol, "side", bp.Side, "qty", bp.Qty)
		} else if local.Quantity != bp.Qty || local.Side != bp.Side {
			t.log.Info("position size changed at broker",
				"ticker", bp.Symbol, "local_qty", local.Quantity, "broker_qty", bp.Qty)
			local.Quantity = bp.Qty
			local.Side = bp.Side
			changed[bp.Symbol] = struct{}{}
		}

		if bp.AvgEntryPrice > 0 {
			local.AvgEntryPrice = bp.AvgEntryPrice
		}
		price := bp.CurrentPrice
		if price <= 0 {
			price = local.CurrentPrice
		}
		if price <= 0 {
			price = local.AvgEntryPrice
		}
		local.UpdatePrice(price)
	}

	for ticker, local := range t.open {
		if _, ok := seen[ticker]; ok {
			continue
		}
		t.closeLocked(local, "no longer reported by broker", now)
		changed[ticker] = struct{}{}
	}

	out := make([]string, 0, len(changed))
	for ticker := range changed {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out, nil
}

// SyncBracketOrderStatus re-derives HasBracketOrder for ticker from the
// broker's open orders: any order of class bracket, oco or oto counts.
func (t *Tracker) SyncBracketOrderStatus(ctx context.Context, ticker string) (bool, error) {
	orders, err := t.broker.GetOrders(ctx, domain.OrderFilter{
		Status:  "open",
		Symbols: []string{ticker},
		Nested:  true,
	})
	if err != nil {
		return false, fmt.Errorf("checking bracket orders for %s: %w", ticker, err)
	}

	has := false
	for _, o := range orders {
		if o.Symbol == ticker && o.Class.IsMultiLeg() {
			has = true
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.open[ticker]; ok {
		p.HasBracketOrder = has
		p.BracketOrderVerified = true
	}
	return has, nil
}

// AddPosition starts tracking p, replacing any existing entry for the ticker.
func (t *Tracker) AddPosition(p domain.TrackedPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.OpenedAt.IsZero() {
		p.OpenedAt = t.now()
	}
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.AvgEntryPrice
	}
	p.UpdatePrice(p.CurrentPrice)
	t.open[p.Ticker] = &p
}

// Adopt attributes an already tracked position to a strategy and records its
// protective levels. It reports whether the ticker was tracked.
func (t *Tracker) Adopt(ticker, strategyName string, stopLoss, target float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[ticker]
	if !ok {
		return false
	}
	p.StrategyName = strategyName
	p.StopLoss = stopLoss
	p.Target = target
	p.Notes = ""
	return true
}

// RemovePosition retires ticker to closed history, reporting the closed entry.
func (t *Tracker) RemovePosition(ticker, reason string) (domain.TrackedPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[ticker]
	if !ok {
		return domain.TrackedPosition{}, false
	}
	return t.closeLocked(p, reason, t.now()), true
}

func (t *Tracker) closeLocked(p *domain.TrackedPosition, reason string, now time.Time) domain.TrackedPosition {
	delete(t.open, p.Ticker)
	closed := *p
	closed.ClosedAt = now
	closed.CloseReason = reason
	closed.RealizedPnL = p.UnrealizedPnL
	t.closed = append(t.closed, closed)
	t.log.Info("position closed", "ticker", closed.Ticker, "reason", reason,
		"strategy", closed.StrategyName, "pnl", closed.RealizedPnL)
	return closed
}

// Get returns a copy of the tracked position for ticker.
func (t *Tracker) Get(ticker string) (domain.TrackedPosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.open[ticker]
	if !ok {
		return domain.TrackedPosition{}, false
	}
	return *p, true
}

// Has reports whether ticker is tracked as open.
func (t *Tracker) Has(ticker string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.open[ticker]
	return ok
}

// Count returns the number of open positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.open)
}

// Positions returns copies of every open position sorted by ticker.
func (t *Tracker) Positions() []domain.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TrackedPosition, 0, len(t.open))
	for _, p := range t.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// UpdatePrice marks ticker to price.
func (t *Tracker) UpdatePrice(ticker string, price float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[ticker]
	if !ok || price <= 0 {
		return false
	}
	p.UpdatePrice(price)
	return true
}

// IncrementExitAttempts bumps and returns the exit attempt counter.
func (t *Tracker) IncrementExitAttempts(ticker string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.open[ticker]
	if !ok {
		return 0
	}
	p.ExitAttempts++
	return p.ExitAttempts
}

// SetNotes replaces the free-form notes on ticker.
func (t *Tracker) SetNotes(ticker, notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.open[ticker]; ok {
		p.Notes = notes
	}
}

// GetClosedPositions returns up to limit closed positions, most recent first.
// A non-positive limit returns all of them.
func (t *Tracker) GetClosedPositions(limit int) []domain.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.closed)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.TrackedPosition, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.closed[i])
	}
	return out
}

// ClosedSince returns closed positions appended after the first offset
// entries, oldest first, together with the new history length.
func (t *Tracker) ClosedSince(offset int) ([]domain.TrackedPosition, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.closed)
	if offset < 0 || offset > n {
		offset = n
	}
	out := make([]domain.TrackedPosition, n-offset)
	copy(out, t.closed[offset:])
	return out, n
}

// RealizedSince sums realized PnL for positions closed at or after since.
func (t *Tracker) RealizedSince(since time.Time) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	for i := len(t.closed) - 1; i >= 0; i-- {
		c := t.closed[i]
		if c.ClosedAt.Before(since) {
			break
		}
		sum += c.RealizedPnL
	}
	return sum
}

// UnrealizedTotal sums unrealized PnL across open positions.
func (t *Tracker) UnrealizedTotal() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	for _, p := range t.open {
		sum += p.UnrealizedPnL
	}
	return sum
}

// Restore replaces the open set with positions. Closed history is kept.
func (t *Tracker) Restore(positions []domain.TrackedPosition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = make(map[string]*domain.TrackedPosition, len(positions))
	for i := range positions {
		p := positions[i]
		if p.Quantity <= 0 {
			continue
		}
		t.open[p.Ticker] = &p
	}
}
