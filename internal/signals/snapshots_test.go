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

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) GetSignal(_ context.Context, ticker string) (*domain.TechnicalSignal, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &domain.TechnicalSignal{Symbol: ticker, Price: float64(100 + c.calls)}, nil
}

func TestSnapshotsServeFreshScan(t *testing.T) {
	src := &countingSource{}
	now := testNow
	s := NewSnapshots(src, 5*time.Minute)
	s.SetClock(func() time.Time { return now })

	scanned, err := s.Refresh(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", scanned.Symbol)

	now = now.Add(4 * time.Minute)
	got, err := s.GetSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Same(t, scanned, got)
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	got, err = s.GetSignal(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.NotSame(t, scanned, got)
	assert.Equal(t, 2, src.calls)
}

func TestSnapshotsMissFetches(t *testing.T) {
	src := &countingSource{}
	s := NewSnapshots(src, time.Minute)

	_, ok := s.Latest("MSFT")
	assert.False(t, ok)

	sig, err := s.GetSignal(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", sig.Symbol)

	latest, ok := s.Latest("msft")
	require.True(t, ok)
	assert.Same(t, sig, latest)
}

func TestSnapshotsRefreshErrorKeepsOld(t *testing.T) {
	src := &countingSource{}
	now := testNow
	s := NewSnapshots(src, 5*time.Minute)
	s.SetClock(func() time.Time { return now })

	old, err := s.Refresh(context.Background(), "AAPL")
	require.NoError(t, err)

	src.err = errors.New("boom")
	_, err = s.Refresh(context.Background(), "AAPL")
	require.Error(t, err)

	latest, ok := s.Latest("AAPL")
	require.True(t, ok)
	assert.Same(t, old, latest)
}
