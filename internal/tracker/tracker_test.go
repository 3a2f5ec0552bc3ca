package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
)

func newTracker(t *testing.T) (*Tracker, *broker.SimulatorBroker) {
	t.Helper()
	sim := broker.NewSimulatorBroker()
	tr := New(sim, nil)
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })
	return tr, sim
}

func TestSyncDiscoversNewBrokerPosition(t *testing.T) {
	tr, sim := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{
		Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150, StrategyName: "momentum",
	})
	sim.SetPosition(domain.Position{Symbol: "AAPL", Qty: 10, Side: domain.SideLong, AvgEntryPrice: 150, CurrentPrice: 151})
	sim.SetPosition(domain.Position{Symbol: "MSFT", Qty: 5, Side: domain.SideLong, AvgEntryPrice: 400, CurrentPrice: 401})

	changed, err := tr.SyncFromBroker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, changed)

	msft, ok := tr.Get("MSFT")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyUnknown, msft.StrategyName)
	assert.InDelta(t, 5.0, msft.UnrealizedPnL, 1e-9)

	aapl, ok := tr.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "momentum", aapl.StrategyName)
	assert.InDelta(t, 151.0, aapl.CurrentPrice, 1e-9)
}

func TestSyncRetiresPositionsMissingAtBroker(t *testing.T) {
	tr, _ := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{
		Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150, StrategyName: "momentum", StopLoss: 145,
	})
	tr.AddPosition(domain.TrackedPosition{
		Ticker: "MSFT", Side: domain.SideShort, Quantity: 3, AvgEntryPrice: 400, StrategyName: "breakout",
	})

	changed, err := tr.SyncFromBroker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, changed)
	assert.Zero(t, tr.Count())

	closed := tr.GetClosedPositions(0)
	require.Len(t, closed, 2)
	byTicker := map[string]domain.TrackedPosition{}
	for _, c := range closed {
		byTicker[c.Ticker] = c
	}
	assert.Equal(t, "momentum", byTicker["AAPL"].StrategyName)
	assert.Equal(t, 145.0, byTicker["AAPL"].StopLoss)
	assert.Equal(t, 10.0, byTicker["AAPL"].Quantity)
	assert.Equal(t, domain.SideShort, byTicker["MSFT"].Side)
	assert.Equal(t, "breakout", byTicker["MSFT"].StrategyName)
}

func TestSyncReportsQuantityChange(t *testing.T) {
	tr, sim := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150})
	sim.SetPosition(domain.Position{Symbol: "AAPL", Qty: 4, Side: domain.SideLong, AvgEntryPrice: 150, CurrentPrice: 150})

	changed, err := tr.SyncFromBroker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, changed)
	p, _ := tr.Get("AAPL")
	assert.Equal(t, 4.0, p.Quantity)
}

func TestSyncBrokerFailure(t *testing.T) {
	tr, sim := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150})
	sim.FailNext(broker.OpGetAllPositions, broker.ErrTransient)

	_, err := tr.SyncFromBroker(context.Background())
	require.ErrorIs(t, err, broker.ErrTransient)
	assert.True(t, tr.Has("AAPL"), "a failed sync must not retire positions")
}

func TestUpdatePriceShortPnL(t *testing.T) {
	tr, _ := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{Ticker: "TSLA", Side: domain.SideShort, Quantity: 2, AvgEntryPrice: 200})
	require.True(t, tr.UpdatePrice("TSLA", 190))
	p, _ := tr.Get("TSLA")
	assert.InDelta(t, 20.0, p.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0.05, p.UnrealizedPnLPct, 1e-9)
}

func TestSyncBracketOrderStatus(t *testing.T) {
	tr, sim := newTracker(t)
	ctx := context.Background()
	tr.AddPosition(domain.TrackedPosition{Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150})

	has, err := tr.SyncBracketOrderStatus(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, has)

	for _, class := range []domain.OrderClass{domain.OrderClassBracket, domain.OrderClassOCO, domain.OrderClassOTO} {
		sim.AddOpenOrder(domain.Order{ID: "leg-" + string(class), Symbol: "AAPL", Class: class, Status: domain.OrderStatusNew})
		has, err = tr.SyncBracketOrderStatus(ctx, "AAPL")
		require.NoError(t, err)
		assert.True(t, has, "class %s", class)
		require.NoError(t, sim.CancelOrder(ctx, "leg-"+string(class)))
	}

	sim.AddOpenOrder(domain.Order{ID: "plain", Symbol: "AAPL", Class: domain.OrderClassSimple, Status: domain.OrderStatusNew})
	has, err = tr.SyncBracketOrderStatus(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, has)

	p, _ := tr.Get("AAPL")
	assert.True(t, p.BracketOrderVerified)
}

func TestClosedHistoryOrdering(t *testing.T) {
	tr, _ := newTracker(t)
	for _, ticker := range []string{"A", "B", "C"} {
		tr.AddPosition(domain.TrackedPosition{Ticker: ticker, Side: domain.SideLong, Quantity: 1, AvgEntryPrice: 10})
		_, ok := tr.RemovePosition(ticker, "exit")
		require.True(t, ok)
	}
	_, ok := tr.RemovePosition("A", "again")
	assert.False(t, ok)

	latest := tr.GetClosedPositions(2)
	require.Len(t, latest, 2)
	assert.Equal(t, "C", latest[0].Ticker)
	assert.Equal(t, "B", latest[1].Ticker)

	since, n := tr.ClosedSince(1)
	assert.Equal(t, 3, n)
	require.Len(t, since, 2)
	assert.Equal(t, "B", since[0].Ticker)
}

func TestAdoptAndExitAttempts(t *testing.T) {
	tr, _ := newTracker(t)
	tr.AddPosition(domain.TrackedPosition{Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 150, StrategyName: domain.StrategyUnknown})
	require.True(t, tr.Adopt("AAPL", "breakout", 145, 160))
	assert.False(t, tr.Adopt("NOPE", "breakout", 1, 2))

	assert.Equal(t, 1, tr.IncrementExitAttempts("AAPL"))
	assert.Equal(t, 2, tr.IncrementExitAttempts("AAPL"))

	p, _ := tr.Get("AAPL")
	assert.Equal(t, "breakout", p.StrategyName)
	assert.Equal(t, 145.0, p.StopLoss)
	assert.Equal(t, 2, p.ExitAttempts)
}
