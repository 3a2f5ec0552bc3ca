package strategy

import (
	"math"

	"autotrader/internal/domain"
)

// Default sizing limits.
const (
	DefaultRiskPerTradePct = 0.01
	DefaultMaxPositionPct  = 0.10
)

// RiskSizer sizes positions so that a stop-out loses RiskPerTradePct of
// equity, capped at MaxPositionPct of equity in notional and by buying power.
type RiskSizer struct {
	RiskPerTradePct float64
	MaxPositionPct  float64
}

// Size returns whole shares; zero when the inputs cannot produce a position.
func (s RiskSizer) Size(entry, stop float64, mctx domain.MarketContext) float64 {
	riskPct := s.RiskPerTradePct
	if riskPct <= 0 {
		riskPct = DefaultRiskPerTradePct
	}
	maxPct := s.MaxPositionPct
	if maxPct <= 0 {
		maxPct = DefaultMaxPositionPct
	}
	perShare := math.Abs(entry - stop)
	if entry <= 0 || perShare == 0 || mctx.AccountEquity <= 0 {
		return 0
	}

	units := mctx.AccountEquity * riskPct / perShare
	units = math.Min(units, mctx.AccountEquity*maxPct/entry)
	if mctx.BuyingPower > 0 {
		units = math.Min(units, mctx.BuyingPower/entry)
	}
	return math.Max(0, math.Floor(units))
}
