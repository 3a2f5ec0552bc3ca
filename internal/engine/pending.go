package engine

import (
	"context"
	"sort"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/internal/events"
)

// PendingOrder is an entry submitted to the broker whose position has not
// appeared yet. Pending tickers count toward max_positions.
type PendingOrder struct {
	Ticker        string      `json:"ticker"`
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	StrategyName  string      `json:"strategy_name"`
	Side          domain.Side `json:"side"`
	Quantity      float64     `json:"quantity"`
	EntryPrice    float64     `json:"entry_price"`
	StopLoss      float64     `json:"stop_loss"`
	Target        float64     `json:"target"`
	SubmittedAt   time.Time   `json:"submitted_at"`
}

func (e *Engine) pendingOrders() []PendingOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingOrder, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// resolvePending adopts fills that appeared at the broker and cancels entries
// that have rested longer than the pending TTL.
func (e *Engine) resolvePending(ctx context.Context, now time.Time, rep *CycleReport) {
	for _, p := range e.pendingOrders() {
		if e.tracker.Has(p.Ticker) {
			e.tracker.Adopt(p.Ticker, p.StrategyName, p.StopLoss, p.Target)
			pos, _ := e.tracker.Get(p.Ticker)
			ev := e.event(events.OrderFilled, now)
			ev.Ticker, ev.Side, ev.Quantity = p.Ticker, p.Side, pos.Quantity
			ev.Price, ev.StopLoss, ev.Target = pos.AvgEntryPrice, p.StopLoss, p.Target
			ev.StrategyName, ev.OrderID, ev.ClientOrderID = p.StrategyName, p.OrderID, p.ClientOrderID
			e.emit(ev)
			e.dropPending(p.Ticker)
			continue
		}

		if e.cfg.PendingOrderTTL <= 0 || now.Sub(p.SubmittedAt) < e.cfg.PendingOrderTTL {
			continue
		}
		reason := "entry not filled within " + e.cfg.PendingOrderTTL.String()
		if err := e.orders.CancelOrder(ctx, p.OrderID); err != nil {
			status, known := e.brokerOrderStatus(ctx, p)
			switch {
			case known && !status.IsOpen():
				reason = "entry order " + string(status) + " at broker"
			case broker.IsTransient(err):
				e.log.Warn("canceling stale entry failed", "ticker", p.Ticker, "order_id", p.OrderID, "error", err)
				rep.Errors = append(rep.Errors, err.Error())
				continue
			default:
				// A refused cancel is not retried; a later fill is picked up
				// by reconciliation as an unattributed position.
				e.log.Error("stale entry cancel refused; dropping", "ticker", p.Ticker, "order_id", p.OrderID, "status", status, "error", err)
				rep.Errors = append(rep.Errors, err.Error())
				reason = "cancel refused: " + err.Error()
			}
		}
		ev := e.event(events.OrderCanceled, now)
		ev.Ticker, ev.Side, ev.Quantity, ev.EntryPrice = p.Ticker, p.Side, p.Quantity, p.EntryPrice
		ev.StrategyName, ev.OrderID, ev.ClientOrderID = p.StrategyName, p.OrderID, p.ClientOrderID
		ev.Reason = reason
		e.emit(ev)
		e.dropPending(p.Ticker)
	}
}

// brokerOrderStatus looks up the broker's current status for a pending entry.
// known is false when the order cannot be listed.
func (e *Engine) brokerOrderStatus(ctx context.Context, p PendingOrder) (status domain.OrderStatus, known bool) {
	list, err := e.broker.GetOrders(ctx, domain.OrderFilter{Status: "all", Symbols: []string{p.Ticker}})
	if err != nil {
		e.log.Warn("looking up stale entry failed", "ticker", p.Ticker, "order_id", p.OrderID, "error", err)
		return "", false
	}
	for _, o := range list {
		if o.ID == p.OrderID {
			return o.Status, true
		}
	}
	return "", false
}

func (e *Engine) dropPending(ticker string) {
	e.mu.Lock()
	delete(e.pending, ticker)
	e.mu.Unlock()
}
