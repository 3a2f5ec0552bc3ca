package strategy

import (
	"fmt"

	"autotrader/internal/domain"
)

// FallbackExit manages positions with no owning strategy, typically those
// discovered at the broker. Without a recorded stop or target it derives them
// from the entry price.
type FallbackExit struct {
	StopPct   float64
	TargetPct float64
}

// DefaultFallbackExit stops out at -5% and takes profit at +10%.
var DefaultFallbackExit = FallbackExit{StopPct: 0.05, TargetPct: 0.10}

// Levels returns the stop and target to apply to pos.
func (f FallbackExit) Levels(pos domain.TrackedPosition) (stop, target float64) {
	stop, target = pos.StopLoss, pos.Target
	entry := pos.AvgEntryPrice
	if pos.Side == domain.SideShort {
		if stop <= 0 {
			stop = entry * (1 + f.StopPct)
		}
		if target <= 0 {
			target = entry * (1 - f.TargetPct)
		}
		return stop, target
	}
	if stop <= 0 {
		stop = entry * (1 - f.StopPct)
	}
	if target <= 0 {
		target = entry * (1 + f.TargetPct)
	}
	return stop, target
}

// EvaluateExit applies the stop/target check to pos at its current price, or
// the technical signal's price when fresher.
func (f FallbackExit) EvaluateExit(pos domain.TrackedPosition, tech *domain.TechnicalSignal) domain.ExitDecision {
	return StopTargetExit(pos, LastPriceOr(tech, pos.CurrentPrice), f)
}

// LastPriceOr is LastPrice with a fallback when the signal carries none.
func LastPriceOr(tech *domain.TechnicalSignal, fallback float64) float64 {
	if p := LastPrice(tech); p > 0 {
		return p
	}
	return fallback
}

// StopTargetExit exits immediately on a stop breach and normally on a target
// hit, using the levels f derives for pos.
func StopTargetExit(pos domain.TrackedPosition, price float64, f FallbackExit) domain.ExitDecision {
	if price <= 0 {
		return domain.Hold("no price")
	}
	stop, target := f.Levels(pos)
	if pos.Side == domain.SideShort {
		switch {
		case price >= stop:
			return domain.Exit(domain.UrgencyImmediate, fmt.Sprintf("stop loss hit at %.2f (stop %.2f)", price, stop))
		case price <= target:
			return domain.Exit(domain.UrgencyNormal, fmt.Sprintf("target reached at %.2f (target %.2f)", price, target))
		}
		return domain.Hold("within stop/target band")
	}
	switch {
	case price <= stop:
		return domain.Exit(domain.UrgencyImmediate, fmt.Sprintf("stop loss hit at %.2f (stop %.2f)", price, stop))
	case price >= target:
		return domain.Exit(domain.UrgencyNormal, fmt.Sprintf("target reached at %.2f (target %.2f)", price, target))
	}
	return domain.Hold("within stop/target band")
}
