package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"autotrader/internal/domain"
)

func TestAlpacaBrokerName(t *testing.T) {
	b := NewAlpacaBroker("key", "secret", "https://paper-api.alpaca.markets")
	if got := b.Name(); got != "alpaca" {
		t.Errorf("AlpacaBroker.Name() = %q, want %q", got, "alpaca")
	}
}

func TestSimulatorBrokerName(t *testing.T) {
	b := NewSimulatorBroker()
	if got := b.Name(); got != "simulator" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "simulator")
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
	if !IsTransient(fmt.Errorf("GetPositions: %w", ErrTransient)) {
		t.Error("wrapped ErrTransient should be transient")
	}
	if IsTransient(ErrRejected) {
		t.Error("ErrRejected should not be transient")
	}
}

func TestSimulatorBracketFill(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker()
	b.SetFillEntries(true)

	o, err := b.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "AAPL", Qty: 10, Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit,
		TimeInForce: domain.TimeInForceDay, LimitPrice: 150, Class: domain.OrderClassBracket,
		TakeProfit: 165, StopLoss: 145, ClientOrderID: "momentum_AAPL_long_1",
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned unexpected error: %v", err)
	}
	if o.Status != domain.OrderStatusFilled || len(o.Legs) != 2 {
		t.Fatalf("unexpected order %+v", o)
	}

	positions, _ := b.GetAllPositions(ctx)
	if len(positions) != 1 || positions[0].Qty != 10 || positions[0].AvgEntryPrice != 150 {
		t.Fatalf("unexpected positions %+v", positions)
	}

	open, _ := b.GetOrders(ctx, domain.OrderFilter{Status: "open", Symbols: []string{"AAPL"}})
	if len(open) != 2 {
		t.Fatalf("want 2 resting legs, got %d", len(open))
	}
	for _, leg := range open {
		if leg.Class != domain.OrderClassBracket {
			t.Errorf("leg class = %q, want bracket", leg.Class)
		}
	}

	_, err = b.SubmitOrder(ctx, domain.OrderRequest{Symbol: "AAPL", Qty: 1, Side: domain.OrderSideBuy, ClientOrderID: "momentum_AAPL_long_1"})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("duplicate client order id: err = %v, want ErrRejected", err)
	}
}

func TestSimulatorStickyCancel(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker()
	b.AddOpenOrder(domain.Order{ID: "o1", Symbol: "AAPL", Class: domain.OrderClassSimple})
	b.SetStickyOrders(true)

	if err := b.CancelOrder(ctx, "o1"); err != nil {
		t.Fatalf("CancelOrder returned unexpected error: %v", err)
	}
	open, _ := b.GetOrders(ctx, domain.OrderFilter{})
	if len(open) != 1 {
		t.Fatalf("sticky order should still be open, got %d open", len(open))
	}

	b.SetStickyOrders(false)
	_ = b.CancelOrder(ctx, "o1")
	open, _ = b.GetOrders(ctx, domain.OrderFilter{})
	if len(open) != 0 {
		t.Fatalf("order should be cancelled, got %d open", len(open))
	}
}

func TestSimulatorFailNext(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker()
	b.FailNext(OpGetAccount, ErrTransient)

	if _, err := b.GetAccount(ctx); !errors.Is(err, ErrTransient) {
		t.Fatalf("first GetAccount: err = %v, want ErrTransient", err)
	}
	if _, err := b.GetAccount(ctx); err != nil {
		t.Fatalf("second GetAccount returned unexpected error: %v", err)
	}
	if got := b.Calls(OpGetAccount); got != 2 {
		t.Errorf("Calls(GetAccount) = %d, want 2", got)
	}
}

func TestSimulatorClosePosition(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker()
	b.SetPosition(domain.Position{Symbol: "MSFT", Qty: 5, Side: domain.SideShort, AvgEntryPrice: 400})
	b.SetPrice("MSFT", 390)

	o, err := b.ClosePosition(ctx, "MSFT")
	if err != nil {
		t.Fatalf("ClosePosition returned unexpected error: %v", err)
	}
	if o.Side != domain.OrderSideBuy || o.FilledAvgPrice != 390 {
		t.Errorf("unexpected close order %+v", o)
	}
	if _, err := b.ClosePosition(ctx, "MSFT"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second close: err = %v, want ErrNotFound", err)
	}
}
