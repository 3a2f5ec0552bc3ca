package domain

import (
	"math"
	"time"
)

// StrategyUnknown is the strategy name attributed to positions discovered at
// the broker that this process did not open.
const StrategyUnknown = "unknown"

// Recommendation is an upstream trade recommendation. Price fields are zero
// when the recommender did not supply them.
type Recommendation struct {
	Ticker          string  `json:"ticker"`
	TradeType       string  `json:"trade_type"`
	EntryPoint      float64 `json:"entry_point"`
	StopLoss        float64 `json:"stop_loss"`
	TargetPrice     float64 `json:"target_price"`
	Quantity        float64 `json:"quantity"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
	EntryCriteria   string  `json:"entry_criteria"`
	Confidence      float64 `json:"confidence,omitempty"`
	Strategy        string  `json:"strategy,omitempty"`
}

// Side returns the direction the recommendation asks for.
func (r *Recommendation) Side() (Side, bool) {
	return ParseSide(r.TradeType)
}

// PendingSignal is a candidate trade waiting in the signal queue.
type PendingSignal struct {
	Ticker         string          `json:"ticker"`
	Action         Side            `json:"action"`
	Confidence     float64         `json:"confidence"`
	Priority       float64         `json:"priority"`
	Source         string          `json:"source"`
	StrategyName   string          `json:"strategy_name"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// IsExpired reports whether the signal is past its expiry at now. A zero
// ExpiresAt never expires.
func (s *PendingSignal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// TrackedPosition is the locally enriched mirror of a broker position.
type TrackedPosition struct {
	Ticker               string    `json:"ticker"`
	Side                 Side      `json:"side"`
	Quantity             float64   `json:"quantity"`
	AvgEntryPrice        float64   `json:"avg_entry_price"`
	CurrentPrice         float64   `json:"current_price"`
	MarketValue          float64   `json:"market_value"`
	UnrealizedPnL        float64   `json:"unrealized_pnl"`
	UnrealizedPnLPct     float64   `json:"unrealized_pnl_pct"`
	StrategyName         string    `json:"strategy_name"`
	OpenedAt             time.Time `json:"opened_at"`
	StopLoss             float64   `json:"stop_loss,omitempty"`
	Target               float64   `json:"target,omitempty"`
	ExitAttempts         int       `json:"exit_attempts"`
	HasBracketOrder      bool      `json:"has_bracket_order"`
	BracketOrderVerified bool      `json:"bracket_order_verified"`
	Notes                string    `json:"notes,omitempty"`

	// Set once the position moves to closed history.
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
}

// UpdatePrice refreshes the current price and every value derived from it.
func (p *TrackedPosition) UpdatePrice(price float64) {
	p.CurrentPrice = price
	p.MarketValue = price * p.Quantity
	switch p.Side {
	case SideShort:
		p.UnrealizedPnL = (p.AvgEntryPrice - price) * p.Quantity
	default:
		p.UnrealizedPnL = (price - p.AvgEntryPrice) * p.Quantity
	}
	cost := p.AvgEntryPrice * p.Quantity
	if cost != 0 {
		p.UnrealizedPnLPct = p.UnrealizedPnL / math.Abs(cost)
	} else {
		p.UnrealizedPnLPct = 0
	}
}

// HoldDuration returns how long the position has been open at now.
func (p *TrackedPosition) HoldDuration(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}

// CooldownEntry blocks re-entry into a ticker until ExpiresAt.
type CooldownEntry struct {
	Ticker       string    `json:"ticker"`
	Reason       string    `json:"reason"`
	StrategyName string    `json:"strategy_name"`
	StartedAt    time.Time `json:"started_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Active reports whether the cooldown still applies at now.
func (c *CooldownEntry) Active(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Remaining returns the time left on the cooldown, never negative.
func (c *CooldownEntry) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// OrderParams is everything needed to submit one bracket entry.
type OrderParams struct {
	Ticker        string  `json:"ticker"`
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	StopLoss      float64 `json:"stop_loss"`
	Target        float64 `json:"target"`
	StrategyName  string  `json:"strategy_name"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

// MarketContext is the read-only snapshot handed to strategies once per cycle.
type MarketContext struct {
	Now               time.Time
	VIX               float64
	MarketStatus      MarketStatus
	AccountEquity     float64
	BuyingPower       float64
	ExistingPositions map[string]TrackedPosition
	CooldownTickers   map[string]struct{}
}

// IsMarketOpen reports whether the regular session is open.
func (m *MarketContext) IsMarketOpen() bool {
	return m.MarketStatus == MarketStatusOpen
}

// HasPosition reports whether a position (or in-flight entry) exists for ticker.
func (m *MarketContext) HasPosition(ticker string) bool {
	_, ok := m.ExistingPositions[ticker]
	return ok
}

// InCooldown reports whether ticker was in cooldown when the snapshot was taken.
func (m *MarketContext) InCooldown(ticker string) bool {
	_, ok := m.CooldownTickers[ticker]
	return ok
}
