package builtins

import (
	"encoding/json"
	"fmt"
	"sync"

	"autotrader/internal/domain"
	"autotrader/internal/indicators"
	"autotrader/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy          = (*Breakout)(nil)
	_ strategy.RoundTripObserver = (*Breakout)(nil)
)

// BreakoutParams tunes the breakout strategy.
type BreakoutParams struct {
	RangePeriod       int     `yaml:"range_period" json:"range_period"`
	MaxRangePct       float64 `yaml:"max_range_pct" json:"max_range_pct"`
	VolumePeriod      int     `yaml:"volume_period" json:"volume_period"`
	VolumeMultiple    float64 `yaml:"volume_multiple" json:"volume_multiple"`
	ATRPeriod         int     `yaml:"atr_period" json:"atr_period"`
	MinATRPct         float64 `yaml:"min_atr_pct" json:"min_atr_pct"`
	RewardRisk        float64 `yaml:"reward_risk" json:"reward_risk"`
	MaxFalseBreakouts int     `yaml:"max_false_breakouts" json:"max_false_breakouts"`
}

// DefaultBreakoutParams returns the tuned defaults.
func DefaultBreakoutParams() BreakoutParams {
	return BreakoutParams{
		RangePeriod:       20,
		MaxRangePct:       0.03,
		VolumePeriod:      50,
		VolumeMultiple:    1.5,
		ATRPeriod:         14,
		MinATRPct:         0.005,
		RewardRisk:        2,
		MaxFalseBreakouts: 2,
	}
}

type breakoutLevels struct {
	Side      domain.Side `json:"side"`
	RangeHigh float64     `json:"range_high"`
	RangeLow  float64     `json:"range_low"`
}

type breakoutState struct {
	FalseBreakouts map[string]int            `json:"false_breakouts"`
	Levels         map[string]breakoutLevels `json:"levels"`
}

// Breakout enters when price leaves a tight consolidation range on expanded
// volume. Tickers that fail too many breakouts in a row are blocked until a
// profitable round trip resets them.
type Breakout struct {
	params BreakoutParams
	sizer  strategy.RiskSizer

	mu    sync.Mutex
	state breakoutState
}

// NewBreakout creates a Breakout strategy.
func NewBreakout(p BreakoutParams, sizer strategy.RiskSizer) *Breakout {
	b := &Breakout{params: p, sizer: sizer}
	b.reset()
	return b
}

func (b *Breakout) reset() {
	b.state = breakoutState{FalseBreakouts: map[string]int{}, Levels: map[string]breakoutLevels{}}
}

// Name returns "breakout".
func (b *Breakout) Name() string { return "breakout" }

// EvaluateEntry implements strategy.Strategy.
func (b *Breakout) EvaluateEntry(sig domain.PendingSignal, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.EntryDecision {
	if reason, ok := strategy.CheckEntryPreconditions(sig.Ticker, mctx); !ok {
		return domain.RejectEntry(reason)
	}
	p := b.params

	b.mu.Lock()
	failures := b.state.FalseBreakouts[sig.Ticker]
	b.mu.Unlock()
	if failures >= p.MaxFalseBreakouts {
		return domain.RejectEntryf("%s blocked after %d false breakouts", sig.Ticker, failures)
	}

	bars := strategy.Bars(tech, p.RangePeriod+1)
	if bars == nil {
		return domain.RejectEntryf("need %d bars for breakout detection", p.RangePeriod+1)
	}
	last := bars[len(bars)-1]
	prior := bars[:len(bars)-1]

	high, low := indicators.Range(prior[len(prior)-p.RangePeriod:])
	mid := (high + low) / 2
	if mid <= 0 {
		return domain.RejectEntry("invalid range")
	}
	if width := (high - low) / mid; width > p.MaxRangePct {
		return domain.RejectEntryf("range %.2f%% wider than %.2f%%", width*100, p.MaxRangePct*100)
	}

	volPeriod := p.VolumePeriod
	if len(prior) < volPeriod {
		volPeriod = len(prior)
	}
	avgVol, _ := indicators.AverageVolume(prior, volPeriod)
	if avgVol <= 0 || float64(last.Volume) < p.VolumeMultiple*avgVol {
		return domain.RejectEntryf("volume %d below %.1fx average %.0f", last.Volume, p.VolumeMultiple, avgVol)
	}

	atr := tech.ATR
	if atr <= 0 {
		var err error
		if atr, err = indicators.ATR(bars, p.ATRPeriod); err != nil {
			return domain.RejectEntryf("cannot compute ATR: %v", err)
		}
	}
	if atr < p.MinATRPct*last.Close {
		return domain.RejectEntryf("ATR %.4f below minimum %.4f", atr, p.MinATRPct*last.Close)
	}

	var plan domain.TradePlan
	switch {
	case last.High > high:
		risk := last.Close - low
		plan = domain.TradePlan{Side: domain.SideLong, EntryPrice: last.Close, StopLoss: low, Target: last.Close + p.RewardRisk*risk}
	case last.Low < low:
		risk := high - last.Close
		plan = domain.TradePlan{Side: domain.SideShort, EntryPrice: last.Close, StopLoss: high, Target: last.Close - p.RewardRisk*risk}
	default:
		return domain.RejectEntryf("no breakout: %.2f-%.2f inside range %.2f-%.2f", last.Low, last.High, low, high)
	}

	reason := fmt.Sprintf("%s breakout of %.2f-%.2f range on %.1fx volume", plan.Side, low, high, float64(last.Volume)/avgVol)
	if rec := sig.Recommendation; rec != nil {
		recSide, ok := rec.Side()
		if !ok || recSide != plan.Side {
			return domain.RejectEntryf("recommendation direction %q disagrees with %s breakout", rec.TradeType, plan.Side)
		}
		if rec.EntryPoint > 0 {
			plan.EntryPrice = rec.EntryPoint
		}
		if rec.StopLoss > 0 {
			plan.StopLoss = rec.StopLoss
		}
		if rec.TargetPrice > 0 {
			plan.Target = rec.TargetPrice
		}
		plan.Size = rec.Quantity
		reason += " (recommendation confirmed)"
	}

	d := domain.AcceptOrReject(reason, plan)
	if d.ShouldEnter() {
		b.mu.Lock()
		b.state.Levels[sig.Ticker] = breakoutLevels{Side: plan.Side, RangeHigh: high, RangeLow: low}
		b.mu.Unlock()
	}
	return d
}

// EvaluateExit exits on stop/target, or urgently once price falls back
// through the middle of the range it broke out of.
func (b *Breakout) EvaluateExit(pos domain.TrackedPosition, tech *domain.TechnicalSignal, _ domain.MarketContext) domain.ExitDecision {
	price := strategy.LastPriceOr(tech, pos.CurrentPrice)
	if d := strategy.StopTargetExit(pos, price, strategy.DefaultFallbackExit); d.ShouldExit {
		return d
	}

	b.mu.Lock()
	lv, ok := b.state.Levels[pos.Ticker]
	b.mu.Unlock()
	if !ok {
		return domain.Hold("no breakout levels recorded")
	}
	mid := (lv.RangeHigh + lv.RangeLow) / 2
	if pos.Side == domain.SideLong && price < mid {
		return domain.Exit(domain.UrgencyUrgent, fmt.Sprintf("failed breakout: %.2f back inside range", price))
	}
	if pos.Side == domain.SideShort && price > mid {
		return domain.Exit(domain.UrgencyUrgent, fmt.Sprintf("failed breakdown: %.2f back inside range", price))
	}
	return domain.Hold("breakout holding")
}

// CalculatePositionSize implements strategy.Strategy.
func (b *Breakout) CalculatePositionSize(entry, stop float64, mctx domain.MarketContext) float64 {
	return b.sizer.Size(entry, stop, mctx)
}

// OnRoundTrip resets the false-breakout counter after a winner and bumps it
// after a loser.
func (b *Breakout) OnRoundTrip(ticker string, pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state.Levels, ticker)
	if pnl > 0 {
		delete(b.state.FalseBreakouts, ticker)
		return
	}
	b.state.FalseBreakouts[ticker]++
}

// FalseBreakouts returns the current counter for ticker.
func (b *Breakout) FalseBreakouts(ticker string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.FalseBreakouts[ticker]
}

// MarshalState implements strategy.Strategy.
func (b *Breakout) MarshalState() (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return json.Marshal(b.state)
}

// UnmarshalState implements strategy.Strategy.
func (b *Breakout) UnmarshalState(data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	if len(data) == 0 {
		return nil
	}
	var st breakoutState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decoding breakout state: %w", err)
	}
	for k, v := range st.FalseBreakouts {
		b.state.FalseBreakouts[k] = v
	}
	for k, v := range st.Levels {
		b.state.Levels[k] = v
	}
	return nil
}
