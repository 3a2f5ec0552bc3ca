package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/domain"
)

func createTestBars() []domain.Bar {
	return []domain.Bar{
		{Open: 100, High: 105, Low: 99, Close: 102, Volume: 1000},
		{Open: 102, High: 107, Low: 101, Close: 105, Volume: 1100},
		{Open: 105, High: 108, Low: 104, Close: 106, Volume: 900},
		{Open: 106, High: 110, Low: 105, Close: 108, Volume: 1200},
		{Open: 108, High: 112, Low: 107, Close: 110, Volume: 1000},
		{Open: 110, High: 113, Low: 109, Close: 111, Volume: 800},
		{Open: 111, High: 115, Low: 110, Close: 113, Volume: 1000},
		{Open: 113, High: 116, Low: 112, Close: 114, Volume: 1000},
		{Open: 114, High: 118, Low: 113, Close: 116, Volume: 1000},
		{Open: 116, High: 120, Low: 115, Close: 118, Volume: 1000},
	}
}

func TestSMA(t *testing.T) {
	sma, err := SMA(createTestBars(), 5)
	require.NoError(t, err)
	// Last 5 closes: 111,113,114,116,118 => 572/5 = 114.4
	assert.InDelta(t, 114.4, sma, 0.001)

	_, err = SMA(createTestBars(), 11)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMA(t *testing.T) {
	ema, err := EMA(createTestBars(), 5)
	require.NoError(t, err)
	sma, _ := SMA(createTestBars(), 5)
	// A rising series pulls the EMA above the trailing SMA.
	assert.Greater(t, ema, 110.0)
	assert.Greater(t, ema, sma-2)
}

func TestATR(t *testing.T) {
	bars := []domain.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}
	atr, err := ATR(bars, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-9)
}

func TestTrueRange(t *testing.T) {
	tr := trueRange(domain.Bar{High: 110, Low: 100, Close: 105}, domain.Bar{Close: 104})
	assert.Equal(t, 10.0, tr)
	tr = trueRange(domain.Bar{High: 110, Low: 108}, domain.Bar{Close: 100})
	assert.Equal(t, 10.0, tr)
}

func TestRSI(t *testing.T) {
	rising := createTestBars()
	rsi, err := RSI(rising, 5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)

	mixed := []domain.Bar{{Close: 10}, {Close: 11}, {Close: 10}, {Close: 11}, {Close: 10}}
	rsi, err = RSI(mixed, 4)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, rsi, 1e-9)
}

func TestZScoreAndBollinger(t *testing.T) {
	bars := []domain.Bar{{Close: 10}, {Close: 10}, {Close: 10}, {Close: 10}, {Close: 14}}
	z, err := ZScore(bars, 5)
	require.NoError(t, err)
	// mean 10.8, sd 1.6 => (14-10.8)/1.6 = 2
	assert.InDelta(t, 2.0, z, 1e-9)

	b, err := Bollinger(bars, 5, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10.8, b.Middle, 1e-9)
	assert.InDelta(t, 14.0, b.Upper, 1e-9)
	assert.InDelta(t, 7.6, b.Lower, 1e-9)

	flat, err := ZScore([]domain.Bar{{Close: 5}, {Close: 5}}, 2)
	require.NoError(t, err)
	assert.Zero(t, flat)
}

func TestADXTrending(t *testing.T) {
	var bars []domain.Bar
	for i := 0; i < 40; i++ {
		base := 100 + float64(i)*2
		bars = append(bars, domain.Bar{Open: base, High: base + 1.5, Low: base - 0.5, Close: base + 1})
	}
	adx, err := ADX(bars, 14)
	require.NoError(t, err)
	assert.Greater(t, adx, 50.0)

	_, err = ADX(bars[:20], 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRangeAndVolume(t *testing.T) {
	hi, lo := Range(createTestBars())
	assert.Equal(t, 120.0, hi)
	assert.Equal(t, 99.0, lo)

	v, err := AverageVolume(createTestBars(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, v)
}

func TestDetectPattern(t *testing.T) {
	engulf := []domain.Bar{
		{Open: 102, High: 102.5, Low: 100.5, Close: 101},
		{Open: 100.8, High: 103.5, Low: 100.5, Close: 103},
	}
	p, ok := DetectPattern(engulf)
	require.True(t, ok)
	assert.Equal(t, "bullish_engulfing", p.Name)
	assert.True(t, p.Bullish)

	hammer := []domain.Bar{{Open: 100, High: 100.6, Low: 96, Close: 100.5}}
	p, ok = DetectPattern(hammer)
	require.True(t, ok)
	assert.Equal(t, "hammer", p.Name)

	_, ok = DetectPattern([]domain.Bar{{Open: 100, High: 101, Low: 99, Close: 100.9}})
	assert.False(t, ok)
}
