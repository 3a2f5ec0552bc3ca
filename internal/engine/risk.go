package engine

import (
	"errors"
	"fmt"
)

// ErrPositionTooLarge is returned by CheckOrder when an entry's notional
// exceeds the per-position equity limit.
var ErrPositionTooLarge = errors.New("position exceeds max position size")

// RiskManager is the engine's admission control. It gates new entries on the
// open position count and a daily-loss circuit breaker. Exits are never
// gated.
type RiskManager struct {
	maxPositions    int
	maxPositionPct  float64
	maxDailyLossPct float64
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositions: open positions plus in-flight entries allowed at once.
//   - maxPositionPct: maximum fraction of equity allowed in a single position
//     (e.g. 0.10 for 10%). Zero disables the check.
//   - maxDailyLossPct: fraction of equity that may be lost in a single
//     trading day before entries stop (e.g. 0.02 for 2%). Zero disables the
//     breaker.
func NewRiskManager(maxPositions int, maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositions:    maxPositions,
		maxPositionPct:  maxPositionPct,
		maxDailyLossPct: maxDailyLossPct,
	}
}

// CircuitOpen reports whether today's loss has reached the limit.
func (rm *RiskManager) CircuitOpen(dailyPnL, equity float64) bool {
	if rm.maxDailyLossPct <= 0 || dailyPnL >= 0 {
		return false
	}
	if equity <= 0 {
		return true
	}
	return -dailyPnL >= rm.maxDailyLossPct*equity
}

// Admit decides whether one more entry may be attempted. It returns the
// refusal reason when not.
func (rm *RiskManager) Admit(openCount int, dailyPnL, equity float64) (bool, string) {
	if equity <= 0 {
		return false, "account equity unknown"
	}
	if rm.CircuitOpen(dailyPnL, equity) {
		return false, fmt.Sprintf("daily loss circuit breaker open: pnl %.2f exceeds %.2f%% of equity %.2f",
			dailyPnL, rm.maxDailyLossPct*100, equity)
	}
	if rm.maxPositions > 0 && openCount >= rm.maxPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", openCount, rm.maxPositions)
	}
	return true, ""
}

// CheckOrder verifies an entry's notional value against the per-position
// limit.
func (rm *RiskManager) CheckOrder(qty, price, equity float64) error {
	if rm.maxPositionPct <= 0 {
		return nil
	}
	notional := qty * price
	if limit := rm.maxPositionPct * equity; notional > limit {
		return fmt.Errorf("%w: notional %.2f > %.2f", ErrPositionTooLarge, notional, limit)
	}
	return nil
}
