package signals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/domain"
)

var testNow = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

// dailySeries returns n ascending daily bars ending on testNow's day, closing
// at 100, 101, ... with a flat volume of 1000.
func dailySeries(n int) []domain.Bar {
	first := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(n - 1))
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = domain.Bar{
			Symbol:    "AAPL",
			Timestamp: first.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func intradaySeries() []domain.Bar {
	start := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	var bars []domain.Bar
	for i, c := range []float64{140, 141, 142} {
		bars = append(bars, domain.Bar{
			Symbol: "AAPL", Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: c - 0.2, High: c + 0.3, Low: c - 0.4, Close: c, Volume: 1000,
		})
	}
	return bars
}

type fakeBars struct {
	daily, intraday       []domain.Bar
	dailyErr, intradayErr []error // consumed one per call
	dailyCalls            int
	intradayCalls         int
	dailyStart            time.Time
}

func (f *fakeBars) DailyBars(_ context.Context, _ string, start, _ time.Time) ([]domain.Bar, error) {
	f.dailyCalls++
	f.dailyStart = start
	if len(f.dailyErr) > 0 {
		err := f.dailyErr[0]
		f.dailyErr = f.dailyErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.daily, nil
}

func (f *fakeBars) IntradayBars(context.Context, string, time.Time, time.Time) ([]domain.Bar, error) {
	f.intradayCalls++
	if len(f.intradayErr) > 0 {
		err := f.intradayErr[0]
		f.intradayErr = f.intradayErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.intraday, nil
}

func newTestProvider(src BarSource) *Provider {
	p := NewProvider(src, Config{Attempts: 2, BaseDelay: time.Millisecond}, nil)
	p.SetClock(func() time.Time { return testNow })
	return p
}

func TestComputeWithIntraday(t *testing.T) {
	sig := Compute("AAPL", dailySeries(40), intradaySeries(), Config{}, testNow)

	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, 142.0, sig.Price, "last intraday close wins")
	assert.InDelta(t, 2.5, sig.ATR, 1e-9)
	assert.InDelta(t, 3.0, sig.RVOL, 1e-9, "3000 session volume over a 1000 average")
	assert.InDelta(t, (142.0/129.0-1)*100, sig.Momentum, 1e-9)
	assert.Contains(t, sig.SignalTags, TagHighRVOL)
	assert.Contains(t, sig.SignalTags, TagAboveSMA20)
	assert.NotContains(t, sig.SignalTags, TagGapUp)
	assert.Greater(t, sig.Score, 0.0)
	assert.LessOrEqual(t, sig.Score, 100.0)
	assert.Len(t, sig.Daily, 40)
	assert.Len(t, sig.Intraday, 3)
	assert.Equal(t, testNow, sig.ComputedAt)
}

func TestComputeDailyOnly(t *testing.T) {
	sig := Compute("AAPL", dailySeries(40), nil, Config{}, testNow)

	assert.Equal(t, 139.0, sig.Price)
	assert.InDelta(t, 1.0, sig.RVOL, 1e-9)
	assert.NotContains(t, sig.SignalTags, TagHighRVOL)
}

func TestComputeGapDown(t *testing.T) {
	daily := dailySeries(30)
	last := &daily[len(daily)-1]
	last.Open, last.Low = 120, 119
	sig := Compute("AAPL", daily, nil, Config{}, testNow)
	assert.Contains(t, sig.SignalTags, TagGapDown)
}

func TestComputeShortHistory(t *testing.T) {
	sig := Compute("AAPL", dailySeries(3), nil, Config{}, testNow)

	assert.Equal(t, 102.0, sig.Price)
	assert.Zero(t, sig.ATR)
	assert.Zero(t, sig.RVOL)
	assert.Zero(t, sig.Momentum)
	assert.NotContains(t, sig.SignalTags, TagAboveSMA20)
}

func TestProviderGetSignal(t *testing.T) {
	src := &fakeBars{daily: dailySeries(40), intraday: intradaySeries()}
	p := newTestProvider(src)

	sig, err := p.GetSignal(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, 142.0, sig.Price)
	assert.Equal(t, testNow.Add(-DefaultConfig().DailyLookback), src.dailyStart)
	assert.Equal(t, 1, src.dailyCalls)
	assert.Equal(t, 1, src.intradayCalls)
}

func TestProviderRetriesDailyBars(t *testing.T) {
	src := &fakeBars{daily: dailySeries(40), dailyErr: []error{errors.New("503")}}
	p := newTestProvider(src)

	sig, err := p.GetSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.dailyCalls)
	assert.Equal(t, 139.0, sig.Price)
}

func TestProviderDailyFailure(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeBars{dailyErr: []error{boom, boom, boom}}
	p := newTestProvider(src)

	_, err := p.GetSignal(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.dailyCalls)
	assert.Zero(t, src.intradayCalls)
}

func TestProviderIntradayFailureDegrades(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeBars{daily: dailySeries(40), intradayErr: []error{boom, boom}}
	p := newTestProvider(src)

	sig, err := p.GetSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Empty(t, sig.Intraday)
	assert.Equal(t, 139.0, sig.Price)
}

func TestProviderNoData(t *testing.T) {
	p := newTestProvider(&fakeBars{})
	_, err := p.GetSignal(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNoData)
}
