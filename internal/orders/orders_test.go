package orders

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
)

func fastManager(b broker.Broker, dryRun bool) *Manager {
	return NewManager(b, Options{
		DryRun:        dryRun,
		CancelTimeout: 50 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}, nil)
}

func bracketParams() *domain.OrderParams {
	return &domain.OrderParams{
		Ticker: "AAPL", Side: domain.SideLong, Quantity: 10,
		EntryPrice: 150.004, StopLoss: 145.126, Target: 165.999, StrategyName: "momentum",
	}
}

func TestValidateAsset(t *testing.T) {
	ctx := context.Background()
	sim := broker.NewSimulatorBroker()
	sim.SetAsset(domain.Asset{Symbol: "HTB", Tradable: true, Shortable: false})
	sim.SetAsset(domain.Asset{Symbol: "OTC", Tradable: false})
	m := fastManager(sim, false)

	ok, reason := m.ValidateAsset(ctx, "AAPL", domain.SideShort)
	assert.True(t, ok, reason)

	ok, reason = m.ValidateAsset(ctx, "HTB", domain.SideLong)
	assert.True(t, ok, reason)

	ok, reason = m.ValidateAsset(ctx, "HTB", domain.SideShort)
	assert.False(t, ok)
	assert.Contains(t, reason, "not shortable")

	ok, reason = m.ValidateAsset(ctx, "OTC", domain.SideLong)
	assert.False(t, ok)
	assert.Contains(t, reason, "not tradable")

	sim.FailNext(broker.OpGetAsset, broker.ErrNotFound)
	ok, reason = m.ValidateAsset(ctx, "ZZZZ", domain.SideLong)
	assert.False(t, ok)
	assert.Contains(t, reason, "lookup failed")
}

func TestSubmitBracketOrder(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	m := fastManager(sim, false)
	params := bracketParams()

	order, err := m.SubmitBracketOrder(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, domain.OrderClassBracket, order.Class)
	assert.Equal(t, domain.OrderSideBuy, order.Side)
	assert.Equal(t, 150.0, order.LimitPrice)
	assert.Equal(t, params.ClientOrderID, order.ClientOrderID)
	assert.Regexp(t, regexp.MustCompile(`^momentum_AAPL_long_[0-9a-f-]{36}$`), params.ClientOrderID)
	require.Len(t, order.Legs, 2)

	var tp, sl float64
	for _, leg := range order.Legs {
		if leg.Type == domain.OrderTypeLimit {
			tp = leg.LimitPrice
		} else {
			sl = leg.StopPrice
		}
	}
	assert.Equal(t, 166.0, tp)
	assert.Equal(t, 145.13, sl)
}

func TestSubmitBracketOrderDryRun(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	m := fastManager(sim, true)

	order, err := m.SubmitBracketOrder(context.Background(), bracketParams())
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Zero(t, sim.Calls(broker.OpSubmitOrder))
}

func TestSubmitBracketOrderInvalid(t *testing.T) {
	m := fastManager(broker.NewSimulatorBroker(), false)

	p := bracketParams()
	p.StopLoss = 0
	_, err := m.SubmitBracketOrder(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.ErrorIs(t, err, domain.ErrMissingStopLoss)

	p = bracketParams()
	p.Quantity = 0
	_, err = m.SubmitBracketOrder(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestClientOrderIDsAreUnique(t *testing.T) {
	a := GenerateClientOrderID("breakout", "msft", domain.SideShort)
	b := GenerateClientOrderID("breakout", "msft", domain.SideShort)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "breakout_MSFT_short_")
}

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, 150.0, RoundPrice(150.004))
	assert.Equal(t, 12.35, RoundPrice(12.345))
	assert.Equal(t, 0.1235, RoundPrice(0.12345))
	assert.Equal(t, 1.0, RoundPrice(0.99999))
}

func TestClosePositionCancelsLegsFirst(t *testing.T) {
	ctx := context.Background()
	sim := broker.NewSimulatorBroker()
	sim.SetFillEntries(true)
	m := fastManager(sim, false)

	_, err := m.SubmitBracketOrder(ctx, bracketParams())
	require.NoError(t, err)

	order, err := m.ClosePosition(ctx, "AAPL", true)
	require.NoError(t, err)
	require.NotNil(t, order)

	open, _ := sim.GetOrders(ctx, domain.OrderFilter{Status: "open"})
	assert.Empty(t, open)
	positions, _ := sim.GetAllPositions(ctx)
	assert.Empty(t, positions)
}

func TestClosePositionTimeoutNeverCloses(t *testing.T) {
	ctx := context.Background()
	sim := broker.NewSimulatorBroker()
	sim.SetPosition(domain.Position{Symbol: "AAPL", Qty: 10, Side: domain.SideLong, AvgEntryPrice: 150})
	sim.AddOpenOrder(domain.Order{ID: "stuck", Symbol: "AAPL", Class: domain.OrderClassBracket})
	sim.SetStickyOrders(true)
	m := fastManager(sim, false)

	start := time.Now()
	order, err := m.ClosePosition(ctx, "AAPL", true)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrOrdersNotCleared)
	assert.Zero(t, sim.Calls(broker.OpClosePosition))
	assert.GreaterOrEqual(t, sim.Calls(broker.OpCancelOrder), 2)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClosePositionRespectsContext(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.AddOpenOrder(domain.Order{ID: "stuck", Symbol: "AAPL"})
	sim.SetStickyOrders(true)
	m := NewManager(sim, Options{CancelTimeout: time.Minute, PollInterval: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.ClosePosition(ctx, "AAPL", true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, sim.Calls(broker.OpClosePosition))
}

func TestClosePositionDryRun(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.SetPosition(domain.Position{Symbol: "AAPL", Qty: 10, Side: domain.SideLong, AvgEntryPrice: 150})
	m := fastManager(sim, true)

	order, err := m.ClosePosition(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Zero(t, sim.Calls(broker.OpClosePosition))
	assert.Zero(t, sim.Calls(broker.OpGetOrders))
}
