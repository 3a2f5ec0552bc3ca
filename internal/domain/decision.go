package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStopLoss is returned when an entry is proposed without a stop.
	ErrMissingStopLoss = errors.New("entry requires a stop loss")
	// ErrStopWrongSide is returned when the stop would not limit the loss.
	ErrStopWrongSide = errors.New("stop loss on wrong side of entry")
	// ErrTargetWrongSide is returned when the target is not on the profit side.
	ErrTargetWrongSide = errors.New("target on wrong side of entry")
	// ErrInvalidEntry is returned for non-positive prices or unknown sides.
	ErrInvalidEntry = errors.New("invalid entry plan")
)

// TradePlan is the concrete set of trade parameters attached to an accepted
// entry. A zero Size asks the engine to size the position itself; a zero
// Target means no take-profit leg was proposed.
type TradePlan struct {
	Side       Side    `json:"side"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	Target     float64 `json:"target"`
}

// Validate checks that the plan is internally consistent.
func (p TradePlan) Validate() error {
	if p.Side != SideLong && p.Side != SideShort {
		return fmt.Errorf("%w: side %q", ErrInvalidEntry, p.Side)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price %.4f", ErrInvalidEntry, p.EntryPrice)
	}
	if p.Size < 0 {
		return fmt.Errorf("%w: size %.4f", ErrInvalidEntry, p.Size)
	}
	if p.StopLoss <= 0 {
		return ErrMissingStopLoss
	}
	if p.Side == SideLong && p.StopLoss >= p.EntryPrice {
		return fmt.Errorf("%w: long stop %.4f >= entry %.4f", ErrStopWrongSide, p.StopLoss, p.EntryPrice)
	}
	if p.Side == SideShort && p.StopLoss <= p.EntryPrice {
		return fmt.Errorf("%w: short stop %.4f <= entry %.4f", ErrStopWrongSide, p.StopLoss, p.EntryPrice)
	}
	if p.Target > 0 {
		if p.Side == SideLong && p.Target <= p.EntryPrice {
			return fmt.Errorf("%w: long target %.4f <= entry %.4f", ErrTargetWrongSide, p.Target, p.EntryPrice)
		}
		if p.Side == SideShort && p.Target >= p.EntryPrice {
			return fmt.Errorf("%w: short target %.4f >= entry %.4f", ErrTargetWrongSide, p.Target, p.EntryPrice)
		}
	}
	return nil
}

// RiskReward returns reward/risk for the plan, or 0 without a target.
func (p TradePlan) RiskReward() float64 {
	risk := p.EntryPrice - p.StopLoss
	reward := p.Target - p.EntryPrice
	if p.Side == SideShort {
		risk, reward = -risk, -reward
	}
	if risk <= 0 || p.Target <= 0 {
		return 0
	}
	return reward / risk
}

// EntryDecision is a strategy's verdict on a queued signal.
//
// The fields are unexported: an accepting decision can only be built through
// AcceptEntry, which refuses plans without a valid stop loss. The zero value
// is a rejection with no reason.
type EntryDecision struct {
	shouldEnter bool
	reason      string
	plan        TradePlan
}

// RejectEntry returns a decision declining the entry.
func RejectEntry(reason string) EntryDecision {
	return EntryDecision{reason: reason}
}

// RejectEntryf is RejectEntry with formatting.
func RejectEntryf(format string, args ...any) EntryDecision {
	return EntryDecision{reason: fmt.Sprintf(format, args...)}
}

// AcceptEntry returns an accepting decision for plan, or an error when the
// plan fails validation.
func AcceptEntry(reason string, plan TradePlan) (EntryDecision, error) {
	if err := plan.Validate(); err != nil {
		return EntryDecision{}, err
	}
	return EntryDecision{shouldEnter: true, reason: reason, plan: plan}, nil
}

// AcceptOrReject accepts plan, or converts a validation failure into a
// rejection carrying the validation error as its reason.
func AcceptOrReject(reason string, plan TradePlan) EntryDecision {
	d, err := AcceptEntry(reason, plan)
	if err != nil {
		return RejectEntryf("invalid trade plan: %v", err)
	}
	return d
}

// ShouldEnter reports whether the strategy wants the trade.
func (d EntryDecision) ShouldEnter() bool { return d.shouldEnter }

// Reason is the human-readable explanation for the decision.
func (d EntryDecision) Reason() string { return d.reason }

// Plan returns the accepted trade plan. ok is false for rejections.
func (d EntryDecision) Plan() (plan TradePlan, ok bool) {
	return d.plan, d.shouldEnter
}

// Side is shorthand for the plan's side; empty for rejections.
func (d EntryDecision) Side() Side {
	if !d.shouldEnter {
		return ""
	}
	return d.plan.Side
}

// StopLoss is shorthand for the plan's stop; zero for rejections.
func (d EntryDecision) StopLoss() float64 {
	if !d.shouldEnter {
		return 0
	}
	return d.plan.StopLoss
}

// ExitDecision is a strategy's verdict on an open position.
type ExitDecision struct {
	ShouldExit bool    `json:"should_exit"`
	Reason     string  `json:"reason"`
	Urgency    Urgency `json:"urgency"`
}

// Hold returns a decision keeping the position open.
func Hold(reason string) ExitDecision {
	return ExitDecision{Reason: reason, Urgency: UrgencyNormal}
}

// Exit returns a decision closing the position.
func Exit(urgency Urgency, reason string) ExitDecision {
	return ExitDecision{ShouldExit: true, Reason: reason, Urgency: urgency}
}
