package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/domain"
)

func newTestManager() (*Manager, *time.Time) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	m := NewManager(time.Hour)
	m.SetClock(func() time.Time { return now })
	return m, &now
}

func TestCooldownLifecycle(t *testing.T) {
	m, now := newTestManager()
	start := *now

	e := m.AddCooldown("AAPL", "stop loss hit", "momentum", 15*time.Minute)
	assert.Equal(t, start.Add(15*time.Minute), e.ExpiresAt)
	assert.True(t, m.IsInCooldown("AAPL"))

	*now = start.Add(15*time.Minute - time.Nanosecond)
	assert.True(t, m.IsInCooldown("AAPL"))

	*now = start.Add(15 * time.Minute)
	assert.False(t, m.IsInCooldown("AAPL"), "cooldown ends at started_at + duration")

	_, ok := m.GetCooldown("AAPL")
	assert.False(t, ok)
}

func TestDefaultDuration(t *testing.T) {
	m, now := newTestManager()
	e := m.AddCooldown("MSFT", "target reached", "breakout", 0)
	assert.Equal(t, now.Add(time.Hour), e.ExpiresAt)
	assert.True(t, e.ExpiresAt.After(e.StartedAt))
}

func TestGetCooldown(t *testing.T) {
	m, _ := newTestManager()
	m.AddCooldown("AAPL", "manual", "momentum", time.Minute)

	e, ok := m.GetCooldown("AAPL")
	require.True(t, ok)
	assert.Equal(t, "manual", e.Reason)
	assert.Equal(t, "momentum", e.StrategyName)

	_, ok = m.GetCooldown("TSLA")
	assert.False(t, ok)
}

func TestPruneReturnsEnded(t *testing.T) {
	m, now := newTestManager()
	start := *now
	m.AddCooldown("AAPL", "a", "s", 10*time.Minute)
	m.AddCooldown("MSFT", "b", "s", 5*time.Minute)
	m.AddCooldown("NVDA", "c", "s", time.Hour)

	*now = start.Add(20 * time.Minute)
	ended := m.Prune()
	require.Len(t, ended, 2)
	assert.Equal(t, "MSFT", ended[0].Ticker)
	assert.Equal(t, "AAPL", ended[1].Ticker)

	assert.Empty(t, m.Prune())
	assert.Len(t, m.Snapshot(), 1)
	assert.Contains(t, m.Tickers(), "NVDA")
}

func TestRestore(t *testing.T) {
	m, now := newTestManager()
	m.Restore([]domain.CooldownEntry{
		{Ticker: "AAPL", StartedAt: *now, ExpiresAt: now.Add(time.Minute)},
		{Ticker: "BAD", StartedAt: *now, ExpiresAt: *now},
	})
	assert.True(t, m.IsInCooldown("AAPL"))
	assert.False(t, m.IsInCooldown("BAD"))
	assert.Len(t, m.Active(), 1)
}
