package builtins

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/indicators"
	"autotrader/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy          = (*MeanReversion)(nil)
	_ strategy.RoundTripObserver = (*MeanReversion)(nil)
)

// MeanReversionParams tunes the mean-reversion strategy.
type MeanReversionParams struct {
	Period        int     `yaml:"period" json:"period"`
	RSIPeriod     int     `yaml:"rsi_period" json:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	BandStdDevs   float64 `yaml:"band_std_devs" json:"band_std_devs"`
	ZScoreEntry   float64 `yaml:"zscore_entry" json:"zscore_entry"`
	// Entries need at least this many of the three extremes.
	MinSignals  int           `yaml:"min_signals" json:"min_signals"`
	ADXPeriod   int           `yaml:"adx_period" json:"adx_period"`
	MaxADX      float64       `yaml:"max_adx" json:"max_adx"`
	StopStdDevs float64       `yaml:"stop_std_devs" json:"stop_std_devs"`
	ExitBand    float64       `yaml:"exit_band" json:"exit_band"`
	MaxHold     time.Duration `yaml:"max_hold" json:"max_hold"`
}

// DefaultMeanReversionParams returns the tuned defaults.
func DefaultMeanReversionParams() MeanReversionParams {
	return MeanReversionParams{
		Period:        20,
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
		BandStdDevs:   2,
		ZScoreEntry:   2,
		MinSignals:    2,
		ADXPeriod:     14,
		MaxADX:        25,
		StopStdDevs:   3,
		ExitBand:      0.5,
		MaxHold:       5 * 24 * time.Hour,
	}
}

type reversionEntry struct {
	Side      domain.Side `json:"side"`
	Entry     float64     `json:"entry"`
	Mean      float64     `json:"mean"`
	StdDev    float64     `json:"std_dev"`
	EnteredAt time.Time   `json:"entered_at"`
}

// MeanReversion fades statistical extremes in ranging markets.
type MeanReversion struct {
	params MeanReversionParams
	sizer  strategy.RiskSizer

	mu      sync.Mutex
	entries map[string]reversionEntry
}

// NewMeanReversion creates a MeanReversion strategy.
func NewMeanReversion(p MeanReversionParams, sizer strategy.RiskSizer) *MeanReversion {
	return &MeanReversion{params: p, sizer: sizer, entries: map[string]reversionEntry{}}
}

// Name returns "mean_reversion".
func (m *MeanReversion) Name() string { return "mean_reversion" }

// EvaluateEntry implements strategy.Strategy.
func (m *MeanReversion) EvaluateEntry(sig domain.PendingSignal, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.EntryDecision {
	if reason, ok := strategy.CheckEntryPreconditions(sig.Ticker, mctx); !ok {
		return domain.RejectEntry(reason)
	}
	p := m.params
	need := max(p.Period, 2*p.ADXPeriod+1, p.RSIPeriod+1)
	bars := strategy.Bars(tech, need)
	if bars == nil {
		return domain.RejectEntryf("need %d bars for mean reversion", need)
	}

	adx, err := indicators.ADX(bars, p.ADXPeriod)
	if err != nil {
		return domain.RejectEntryf("cannot compute ADX: %v", err)
	}
	if adx >= p.MaxADX {
		return domain.RejectEntryf("trend too strong: ADX %.1f >= %.1f", adx, p.MaxADX)
	}

	rsi, _ := indicators.RSI(bars, p.RSIPeriod)
	bands, _ := indicators.Bollinger(bars, p.Period, p.BandStdDevs)
	z, _ := indicators.ZScore(bars, p.Period)
	sd, _ := indicators.StdDev(bars, p.Period)
	if sd == 0 {
		return domain.RejectEntry("zero volatility")
	}
	px := bars[len(bars)-1].Close

	var longHits, shortHits []string
	if rsi <= p.RSIOversold {
		longHits = append(longHits, fmt.Sprintf("rsi=%.1f", rsi))
	}
	if rsi >= p.RSIOverbought {
		shortHits = append(shortHits, fmt.Sprintf("rsi=%.1f", rsi))
	}
	if px <= bands.Lower {
		longHits = append(longHits, "below_lower_band")
	}
	if px >= bands.Upper {
		shortHits = append(shortHits, "above_upper_band")
	}
	if z <= -p.ZScoreEntry {
		longHits = append(longHits, fmt.Sprintf("z=%.2f", z))
	}
	if z >= p.ZScoreEntry {
		shortHits = append(shortHits, fmt.Sprintf("z=%.2f", z))
	}

	var plan domain.TradePlan
	var hits []string
	switch {
	case len(longHits) >= p.MinSignals:
		hits = longHits
		plan = domain.TradePlan{Side: domain.SideLong, EntryPrice: px, StopLoss: px - p.StopStdDevs*sd, Target: bands.Middle}
	case len(shortHits) >= p.MinSignals:
		hits = shortHits
		plan = domain.TradePlan{Side: domain.SideShort, EntryPrice: px, StopLoss: px + p.StopStdDevs*sd, Target: bands.Middle}
	default:
		return domain.RejectEntryf("no extreme: rsi=%.1f z=%.2f", rsi, z)
	}
	if want := sig.Action; want != "" && want != plan.Side {
		return domain.RejectEntryf("signal asks %s but extreme favours %s", want, plan.Side)
	}
	if plan.StopLoss <= 0 {
		return domain.RejectEntryf("stop %.4f not positive", plan.StopLoss)
	}

	d := domain.AcceptOrReject(fmt.Sprintf("%s reversion (%s, adx=%.1f)", plan.Side, strings.Join(hits, ","), adx), plan)
	if d.ShouldEnter() {
		m.mu.Lock()
		m.entries[sig.Ticker] = reversionEntry{Side: plan.Side, Entry: px, Mean: bands.Middle, StdDev: sd, EnteredAt: mctx.Now}
		m.mu.Unlock()
	}
	return d
}

// EvaluateExit exits once price is back within ExitBand standard deviations
// of the mean, on a StopStdDevs adverse move, or after MaxHold.
func (m *MeanReversion) EvaluateExit(pos domain.TrackedPosition, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.ExitDecision {
	price := strategy.LastPriceOr(tech, pos.CurrentPrice)
	m.mu.Lock()
	e, ok := m.entries[pos.Ticker]
	m.mu.Unlock()
	if !ok || e.StdDev == 0 {
		return strategy.StopTargetExit(pos, price, strategy.DefaultFallbackExit)
	}

	dir := 1.0
	if pos.Side == domain.SideShort {
		dir = -1
	}
	adverse := dir * (e.Entry - price) / e.StdDev
	if adverse >= m.params.StopStdDevs {
		return domain.Exit(domain.UrgencyImmediate, fmt.Sprintf("stop: %.1f std devs against entry", adverse))
	}
	if math.Abs(price-e.Mean)/e.StdDev <= m.params.ExitBand || dir*(price-e.Mean) > 0 {
		return domain.Exit(domain.UrgencyNormal, fmt.Sprintf("reverted to mean %.2f", e.Mean))
	}
	if m.params.MaxHold > 0 && !e.EnteredAt.IsZero() && mctx.Now.Sub(e.EnteredAt) >= m.params.MaxHold {
		return domain.Exit(domain.UrgencyNormal, fmt.Sprintf("max hold %s reached", m.params.MaxHold))
	}
	return domain.Hold("awaiting reversion")
}

// CalculatePositionSize implements strategy.Strategy.
func (m *MeanReversion) CalculatePositionSize(entry, stop float64, mctx domain.MarketContext) float64 {
	return m.sizer.Size(entry, stop, mctx)
}

// OnRoundTrip forgets the entry statistics.
func (m *MeanReversion) OnRoundTrip(ticker string, _ float64) {
	m.mu.Lock()
	delete(m.entries, ticker)
	m.mu.Unlock()
}

// MarshalState implements strategy.Strategy.
func (m *MeanReversion) MarshalState() (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.entries)
}

// UnmarshalState implements strategy.Strategy.
func (m *MeanReversion) UnmarshalState(data json.RawMessage) error {
	entries := map[string]reversionEntry{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decoding mean_reversion state: %w", err)
		}
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}
