// Package signals builds the per-ticker TechnicalSignal the engine hands to
// strategies, from daily and intraday OHLCV bars.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/indicators"
	"autotrader/internal/util"
)

// ErrNoData is returned when the bar source has no daily history for a
// ticker.
var ErrNoData = errors.New("no bar data")

// Tags attached to a signal.
const (
	TagHighRVOL   = "high_rvol"
	TagAboveSMA20 = "above_sma20"
	TagBelowSMA20 = "below_sma20"
	TagGapUp      = "gap_up"
	TagGapDown    = "gap_down"
)

// BarSource fetches OHLCV bars in ascending time order.
type BarSource interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	IntradayBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// Config tunes the lookbacks used to compute a signal.
type Config struct {
	DailyLookback    time.Duration
	IntradayLookback time.Duration
	ATRPeriod        int
	RVOLPeriod       int
	MomentumPeriod   int
	HighRVOL         float64
	GapPct           float64

	// RequestsPerMinute throttles calls to the bar source.
	RequestsPerMinute int
	Attempts          int
	BaseDelay         time.Duration
}

// DefaultConfig returns the lookbacks used when a field is zero.
func DefaultConfig() Config {
	return Config{
		DailyLookback:     120 * 24 * time.Hour,
		IntradayLookback:  24 * time.Hour,
		ATRPeriod:         14,
		RVOLPeriod:        20,
		MomentumPeriod:    10,
		HighRVOL:          2.0,
		GapPct:            0.02,
		RequestsPerMinute: 180,
		Attempts:          3,
		BaseDelay:         250 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DailyLookback <= 0 {
		c.DailyLookback = d.DailyLookback
	}
	if c.IntradayLookback <= 0 {
		c.IntradayLookback = d.IntradayLookback
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.RVOLPeriod <= 0 {
		c.RVOLPeriod = d.RVOLPeriod
	}
	if c.MomentumPeriod <= 0 {
		c.MomentumPeriod = d.MomentumPeriod
	}
	if c.HighRVOL <= 0 {
		c.HighRVOL = d.HighRVOL
	}
	if c.GapPct <= 0 {
		c.GapPct = d.GapPct
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	return c
}

// Provider computes TechnicalSignals from a BarSource. It implements the
// engine's signal provider.
type Provider struct {
	bars    BarSource
	cfg     Config
	limiter *util.RateLimiter
	log     *slog.Logger
	now     func() time.Time
}

// NewProvider creates a Provider over bars.
func NewProvider(bars BarSource, cfg Config, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Provider{
		bars:    bars,
		cfg:     cfg,
		limiter: util.NewBurstRateLimiter(cfg.RequestsPerMinute, 10),
		log:     log.With("component", "signals"),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (p *Provider) SetClock(now func() time.Time) { p.now = now }

// GetSignal fetches recent bars for ticker and summarizes them. Intraday
// failures degrade to a daily-only signal; a daily failure is an error.
func (p *Provider) GetSignal(ctx context.Context, ticker string) (*domain.TechnicalSignal, error) {
	ticker = strings.ToUpper(ticker)
	now := p.now()

	daily, err := p.fetch(ctx, func() ([]domain.Bar, error) {
		return p.bars.DailyBars(ctx, ticker, now.Add(-p.cfg.DailyLookback), now)
	})
	if err != nil {
		return nil, fmt.Errorf("daily bars for %s: %w", ticker, err)
	}
	if len(daily) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	intraday, err := p.fetch(ctx, func() ([]domain.Bar, error) {
		return p.bars.IntradayBars(ctx, ticker, now.Add(-p.cfg.IntradayLookback), now)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn("intraday bars unavailable", "ticker", ticker, "error", err)
		intraday = nil
	}

	return Compute(ticker, daily, intraday, p.cfg, now), nil
}

func (p *Provider) fetch(ctx context.Context, fn func() ([]domain.Bar, error)) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, p.cfg.Attempts, p.cfg.BaseDelay, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = fn()
		return err
	})
	return bars, err
}

// Compute summarizes daily and intraday bars into a signal. Fields that need
// more history than is available are left zero.
func Compute(ticker string, daily, intraday []domain.Bar, cfg Config, now time.Time) *domain.TechnicalSignal {
	cfg = cfg.withDefaults()
	sig := &domain.TechnicalSignal{
		Symbol:     ticker,
		Daily:      daily,
		Intraday:   intraday,
		ComputedAt: now,
	}
	if len(daily) == 0 {
		return sig
	}

	last := daily[len(daily)-1]
	sig.Price = last.Close
	if len(intraday) > 0 {
		sig.Price = intraday[len(intraday)-1].Close
	}

	if atr, err := indicators.ATR(daily, cfg.ATRPeriod); err == nil {
		sig.ATR = atr
	}

	// Relative volume compares the latest session's volume with the average
	// of the sessions before it.
	today, prior := float64(last.Volume), daily[:len(daily)-1]
	if len(intraday) > 0 {
		session := intraday[len(intraday)-1].Timestamp
		today = float64(sessionVolume(intraday, session))
		prior = before(daily, session)
	}
	if avg, err := indicators.AverageVolume(prior, cfg.RVOLPeriod); err == nil && avg > 0 {
		sig.RVOL = today / avg
	}

	if n := cfg.MomentumPeriod; len(daily) > n {
		base := daily[len(daily)-1-n].Close
		if base > 0 {
			sig.Momentum = (sig.Price/base - 1) * 100
		}
	}

	var tags []string
	if sig.RVOL >= cfg.HighRVOL {
		tags = append(tags, TagHighRVOL)
	}
	if sma, err := indicators.SMA(daily, 20); err == nil {
		if sig.Price > sma {
			tags = append(tags, TagAboveSMA20)
		} else {
			tags = append(tags, TagBelowSMA20)
		}
	}
	if len(daily) >= 2 {
		prevClose := daily[len(daily)-2].Close
		if prevClose > 0 {
			gap := (last.Open - prevClose) / prevClose
			switch {
			case gap >= cfg.GapPct:
				tags = append(tags, TagGapUp)
			case gap <= -cfg.GapPct:
				tags = append(tags, TagGapDown)
			}
		}
	}
	if pat, ok := indicators.DetectPattern(daily); ok {
		tags = append(tags, pat.Name)
	}
	sig.SignalTags = tags
	sig.Score = score(sig)
	return sig
}

// sessionVolume sums intraday volume on the calendar day of session.
func sessionVolume(intraday []domain.Bar, session time.Time) int64 {
	var total int64
	for _, b := range intraday {
		if sameDay(b.Timestamp, session) {
			total += b.Volume
		}
	}
	return total
}

// before returns the daily bars dated strictly before session's day.
func before(daily []domain.Bar, session time.Time) []domain.Bar {
	i := len(daily)
	for i > 0 {
		t := daily[i-1].Timestamp
		if t.Before(session) && !sameDay(t, session) {
			break
		}
		i--
	}
	return daily[:i]
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// score is a 0..100 composite of momentum strength and participation.
func score(sig *domain.TechnicalSignal) float64 {
	m := sig.Momentum
	if m < 0 {
		m = -m
	}
	s := min(m*5, 60) + min(sig.RVOL*10, 40)
	return min(s, 100)
}
