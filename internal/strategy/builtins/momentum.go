package builtins

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/indicators"
	"autotrader/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy          = (*Momentum)(nil)
	_ strategy.RoundTripObserver = (*Momentum)(nil)
)

// MomentumParams tunes the momentum strategy.
type MomentumParams struct {
	// Fraction of condition weight that must be met to enter.
	FuzzyThreshold       float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	RSIPeriod            int     `yaml:"rsi_period" json:"rsi_period"`
	RSIBullish           float64 `yaml:"rsi_bullish" json:"rsi_bullish"`
	RSIBearish           float64 `yaml:"rsi_bearish" json:"rsi_bearish"`
	FastMA               int     `yaml:"fast_ma" json:"fast_ma"`
	SlowMA               int     `yaml:"slow_ma" json:"slow_ma"`
	MinPatternConfidence float64 `yaml:"min_pattern_confidence" json:"min_pattern_confidence"`
	MinRVOL              float64 `yaml:"min_rvol" json:"min_rvol"`
}

// DefaultMomentumParams returns the tuned defaults.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{
		FuzzyThreshold:       0.7,
		RSIPeriod:            14,
		RSIBullish:           60,
		RSIBearish:           40,
		FastMA:               20,
		SlowMA:               50,
		MinPatternConfidence: 0.6,
		MinRVOL:              1.5,
	}
}

type momentumEntry struct {
	Side       domain.Side `json:"side"`
	Score      float64     `json:"score"`
	Conditions []string    `json:"conditions"`
	EnteredAt  time.Time   `json:"entered_at"`
}

type momentumState struct {
	Entries map[string]momentumEntry `json:"entries"`
	Wins    int                      `json:"wins"`
	Losses  int                      `json:"losses"`
}

// Momentum validates externally recommended trades against a weighted set of
// technical conditions. It never recomputes the recommendation's prices.
type Momentum struct {
	params MomentumParams
	sizer  strategy.RiskSizer

	mu    sync.Mutex
	state momentumState
}

// NewMomentum creates a Momentum strategy.
func NewMomentum(p MomentumParams, sizer strategy.RiskSizer) *Momentum {
	return &Momentum{params: p, sizer: sizer, state: momentumState{Entries: map[string]momentumEntry{}}}
}

// Name returns "momentum".
func (m *Momentum) Name() string { return "momentum" }

type condition struct {
	name   string
	weight float64
	met    bool
}

// EvaluateEntry implements strategy.Strategy.
func (m *Momentum) EvaluateEntry(sig domain.PendingSignal, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.EntryDecision {
	if reason, ok := strategy.CheckEntryPreconditions(sig.Ticker, mctx); !ok {
		return domain.RejectEntry(reason)
	}
	rec := sig.Recommendation
	if rec == nil {
		return domain.RejectEntry("momentum entry requires a recommendation; none supplied")
	}
	side, ok := rec.Side()
	if !ok {
		return domain.RejectEntryf("recommendation trade type %q is not long or short", rec.TradeType)
	}
	if tech == nil {
		return domain.RejectEntryf("no technical signal for %s", sig.Ticker)
	}

	conds := m.conditions(side, tech)
	var total, met float64
	var names []string
	for _, c := range conds {
		total += c.weight
		if c.met {
			met += c.weight
			names = append(names, c.name)
		}
	}
	score := met / total
	if score < m.params.FuzzyThreshold {
		return domain.RejectEntryf("momentum score %.2f below threshold %.2f (met: %s)",
			score, m.params.FuzzyThreshold, strings.Join(names, ","))
	}

	entry := rec.EntryPoint
	if entry <= 0 {
		entry = strategy.LastPrice(tech)
	}
	plan := domain.TradePlan{
		Side:       side,
		Size:       rec.Quantity,
		EntryPrice: entry,
		StopLoss:   rec.StopLoss,
		Target:     rec.TargetPrice,
	}
	d := domain.AcceptOrReject(fmt.Sprintf("momentum score %.2f (met: %s)", score, strings.Join(names, ",")), plan)
	if d.ShouldEnter() {
		m.mu.Lock()
		m.state.Entries[sig.Ticker] = momentumEntry{Side: side, Score: score, Conditions: names, EnteredAt: mctx.Now}
		m.mu.Unlock()
	}
	return d
}

func (m *Momentum) conditions(side domain.Side, tech *domain.TechnicalSignal) []condition {
	p := m.params
	long := side == domain.SideLong
	bars := strategy.Bars(tech, p.SlowMA)
	if bars == nil {
		bars = strategy.Bars(tech, p.RSIPeriod+1)
	}

	rsiMet := false
	if rsi, err := indicators.RSI(bars, p.RSIPeriod); err == nil {
		rsiMet = (long && rsi >= p.RSIBullish) || (!long && rsi <= p.RSIBearish)
	}

	maMet := false
	fast, errFast := indicators.SMA(bars, p.FastMA)
	slow, errSlow := indicators.SMA(bars, p.SlowMA)
	if price := strategy.LastPrice(tech); errFast == nil && errSlow == nil && price > 0 {
		maMet = (long && price > fast && fast > slow) || (!long && price < fast && fast < slow)
	}

	patternMet := false
	if pat, ok := indicators.DetectPattern(bars); ok {
		patternMet = pat.Confidence >= p.MinPatternConfidence && pat.Bullish == long
	}

	return []condition{
		{"rsi_extreme", 1, rsiMet},
		{"ma_alignment", 1, maMet},
		{"pattern", 1, patternMet},
		{"rvol", 0.5, tech.RVOL >= p.MinRVOL},
		{"momentum", 0.5, (long && tech.Momentum > 0) || (!long && tech.Momentum < 0)},
	}
}

// EvaluateExit exits on the recorded stop or target, or urgently when price
// loses the fast moving average against the position.
func (m *Momentum) EvaluateExit(pos domain.TrackedPosition, tech *domain.TechnicalSignal, _ domain.MarketContext) domain.ExitDecision {
	price := strategy.LastPriceOr(tech, pos.CurrentPrice)
	if d := strategy.StopTargetExit(pos, price, strategy.DefaultFallbackExit); d.ShouldExit {
		return d
	}
	if fast, err := indicators.SMA(strategy.Bars(tech, m.params.FastMA), m.params.FastMA); err == nil {
		if pos.Side == domain.SideLong && price < fast {
			return domain.Exit(domain.UrgencyUrgent, fmt.Sprintf("trend break: %.2f below SMA%d %.2f", price, m.params.FastMA, fast))
		}
		if pos.Side == domain.SideShort && price > fast {
			return domain.Exit(domain.UrgencyUrgent, fmt.Sprintf("trend break: %.2f above SMA%d %.2f", price, m.params.FastMA, fast))
		}
	}
	return domain.Hold("momentum intact")
}

// CalculatePositionSize implements strategy.Strategy.
func (m *Momentum) CalculatePositionSize(entry, stop float64, mctx domain.MarketContext) float64 {
	return m.sizer.Size(entry, stop, mctx)
}

// OnRoundTrip records the outcome and forgets the entry.
func (m *Momentum) OnRoundTrip(ticker string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.Entries, ticker)
	if pnl > 0 {
		m.state.Wins++
	} else {
		m.state.Losses++
	}
}

// MarshalState implements strategy.Strategy.
func (m *Momentum) MarshalState() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.state)
}

// UnmarshalState implements strategy.Strategy.
func (m *Momentum) UnmarshalState(data json.RawMessage) error {
	st := momentumState{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &st); err != nil {
			return fmt.Errorf("decoding momentum state: %w", err)
		}
	}
	if st.Entries == nil {
		st.Entries = map[string]momentumEntry{}
	}
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return nil
}
