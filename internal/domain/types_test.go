package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify Order can be instantiated with zero values.
	order := Order{}
	if order.ID != "" || order.ClientOrderID != "" {
		t.Error("expected empty IDs for zero-value Order")
	}
	if order.Status.IsOpen() {
		t.Error("zero-value order status should not be open")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}
	if SideShort.EntryOrderSide() != OrderSideSell || SideShort.ExitOrderSide() != OrderSideBuy {
		t.Error("short side should enter with sell and exit with buy")
	}
}

func TestParseSide(t *testing.T) {
	cases := map[string]Side{"LONG": SideLong, "buy": SideLong, " Short ": SideShort, "sell": SideShort}
	for in, want := range cases {
		got, ok := ParseSide(in)
		if !ok || got != want {
			t.Errorf("ParseSide(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseSide("hold"); ok {
		t.Error("ParseSide(hold) should not parse")
	}
}

func TestOrderClassIsMultiLeg(t *testing.T) {
	for _, c := range []OrderClass{OrderClassBracket, OrderClassOCO, OrderClassOTO} {
		if !c.IsMultiLeg() {
			t.Errorf("%s should be multi-leg", c)
		}
	}
	if OrderClassSimple.IsMultiLeg() {
		t.Error("simple should not be multi-leg")
	}
}

func TestTrackedPositionUpdatePriceLong(t *testing.T) {
	p := TrackedPosition{Ticker: "AAPL", Side: SideLong, Quantity: 10, AvgEntryPrice: 150}
	p.UpdatePrice(160)

	if p.UnrealizedPnL != 100.0 {
		t.Errorf("UnrealizedPnL = %v, want 100", p.UnrealizedPnL)
	}
	if math.Abs(p.UnrealizedPnLPct-0.0667) > 1e-4 {
		t.Errorf("UnrealizedPnLPct = %v, want ~0.0667", p.UnrealizedPnLPct)
	}
	if p.MarketValue != 1600 {
		t.Errorf("MarketValue = %v, want 1600", p.MarketValue)
	}
}

func TestTrackedPositionUpdatePriceShort(t *testing.T) {
	p := TrackedPosition{Ticker: "TSLA", Side: SideShort, Quantity: 5, AvgEntryPrice: 200}
	p.UpdatePrice(190)
	if p.UnrealizedPnL != 50 {
		t.Errorf("short UnrealizedPnL = %v, want 50", p.UnrealizedPnL)
	}
	p.UpdatePrice(210)
	if p.UnrealizedPnL != -50 {
		t.Errorf("short UnrealizedPnL = %v, want -50", p.UnrealizedPnL)
	}
}

func TestPendingSignalExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s := PendingSignal{Ticker: "AAPL", ExpiresAt: now.Add(time.Minute)}
	if s.IsExpired(now) {
		t.Error("signal should not be expired before ExpiresAt")
	}
	if !s.IsExpired(now.Add(2 * time.Minute)) {
		t.Error("signal should be expired after ExpiresAt")
	}
	if (&PendingSignal{}).IsExpired(now) {
		t.Error("zero ExpiresAt should never expire")
	}
}

func TestAcceptEntryRequiresStopLoss(t *testing.T) {
	_, err := AcceptEntry("no stop", TradePlan{Side: SideLong, Size: 10, EntryPrice: 100, Target: 110})
	if !errors.Is(err, ErrMissingStopLoss) {
		t.Fatalf("AcceptEntry without stop: err = %v, want ErrMissingStopLoss", err)
	}

	_, err = AcceptEntry("stop above", TradePlan{Side: SideLong, EntryPrice: 100, StopLoss: 101})
	if !errors.Is(err, ErrStopWrongSide) {
		t.Fatalf("long stop above entry: err = %v, want ErrStopWrongSide", err)
	}

	_, err = AcceptEntry("short target", TradePlan{Side: SideShort, EntryPrice: 100, StopLoss: 105, Target: 101})
	if !errors.Is(err, ErrTargetWrongSide) {
		t.Fatalf("short target above entry: err = %v, want ErrTargetWrongSide", err)
	}

	d, err := AcceptEntry("ok", TradePlan{Side: SideShort, EntryPrice: 100, StopLoss: 105, Target: 90})
	if err != nil {
		t.Fatalf("AcceptEntry returned unexpected error: %v", err)
	}
	if !d.ShouldEnter() || d.StopLoss() != 105 || d.Side() != SideShort {
		t.Errorf("unexpected decision %+v", d)
	}
	if rr := (TradePlan{Side: SideShort, EntryPrice: 100, StopLoss: 105, Target: 90}).RiskReward(); rr != 2 {
		t.Errorf("RiskReward = %v, want 2", rr)
	}
}

func TestEntryDecisionInvariant(t *testing.T) {
	decisions := []EntryDecision{
		{},
		RejectEntry("market closed"),
		AcceptOrReject("missing stop", TradePlan{Side: SideLong, EntryPrice: 10}),
		AcceptOrReject("valid", TradePlan{Side: SideLong, EntryPrice: 10, StopLoss: 9}),
	}
	for i, d := range decisions {
		if d.ShouldEnter() && d.StopLoss() <= 0 {
			t.Errorf("decision %d enters without a stop loss", i)
		}
	}
	if decisions[2].ShouldEnter() {
		t.Error("plan without stop should have been converted to a rejection")
	}
	if !decisions[3].ShouldEnter() {
		t.Error("valid plan should be accepted")
	}
}

func TestCooldownEntryActive(t *testing.T) {
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := CooldownEntry{Ticker: "AAPL", StartedAt: start, ExpiresAt: start.Add(time.Hour)}
	if !c.Active(start) {
		t.Error("cooldown should be active at start")
	}
	if c.Active(start.Add(time.Hour)) {
		t.Error("cooldown should end at ExpiresAt")
	}
	if c.Remaining(start.Add(2*time.Hour)) != 0 {
		t.Error("Remaining should never be negative")
	}
}
