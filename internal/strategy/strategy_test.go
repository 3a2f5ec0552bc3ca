package strategy

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"autotrader/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name  string
	state string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) EvaluateEntry(_ domain.PendingSignal, _ *domain.TechnicalSignal, _ domain.MarketContext) domain.EntryDecision {
	return domain.RejectEntry("stub")
}
func (s *stubStrategy) EvaluateExit(_ domain.TrackedPosition, _ *domain.TechnicalSignal, _ domain.MarketContext) domain.ExitDecision {
	return domain.Hold("stub")
}
func (s *stubStrategy) CalculatePositionSize(_, _ float64, _ domain.MarketContext) float64 { return 0 }
func (s *stubStrategy) MarshalState() (json.RawMessage, error)                            { return json.Marshal(s.state) }
func (s *stubStrategy) UnmarshalState(data json.RawMessage) error {
	s.state = ""
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &s.state)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha"})
	r.Register(&stubStrategy{name: "beta"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestRegistryStateRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha", state: "a-state"})

	state, err := r.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState returned unexpected error: %v", err)
	}
	state["ghost"] = json.RawMessage(`{"n":1}`)

	r2 := NewRegistry()
	alpha := &stubStrategy{name: "alpha"}
	r2.Register(alpha)
	if err := r2.UnmarshalState(state); err != nil {
		t.Fatalf("UnmarshalState returned unexpected error: %v", err)
	}
	if alpha.state != "a-state" {
		t.Errorf("alpha state = %q, want %q", alpha.state, "a-state")
	}

	// Blobs for unregistered strategies survive a second round trip.
	again, _ := r2.MarshalState()
	if string(again["ghost"]) != `{"n":1}` {
		t.Errorf("ghost blob = %s, want preserved", again["ghost"])
	}
}

func TestCheckEntryPreconditions(t *testing.T) {
	base := domain.MarketContext{
		Now:               time.Now(),
		MarketStatus:      domain.MarketStatusOpen,
		ExistingPositions: map[string]domain.TrackedPosition{"MSFT": {Ticker: "MSFT"}},
		CooldownTickers:   map[string]struct{}{"TSLA": {}},
	}

	if reason, ok := CheckEntryPreconditions("AAPL", base); !ok {
		t.Errorf("AAPL should pass, got %q", reason)
	}

	tests := []struct {
		ticker string
		status domain.MarketStatus
		want   string
	}{
		{"AAPL", domain.MarketStatusClosed, "market not open"},
		{"TSLA", domain.MarketStatusOpen, "cooldown"},
		{"MSFT", domain.MarketStatusOpen, "already held"},
	}
	for _, tt := range tests {
		mctx := base
		mctx.MarketStatus = tt.status
		reason, ok := CheckEntryPreconditions(tt.ticker, mctx)
		if ok {
			t.Errorf("%s/%s: expected rejection", tt.ticker, tt.status)
			continue
		}
		if !strings.Contains(reason, tt.want) {
			t.Errorf("%s: reason %q does not mention %q", tt.ticker, reason, tt.want)
		}
	}
}

func TestRiskSizer(t *testing.T) {
	mctx := domain.MarketContext{AccountEquity: 100000, BuyingPower: 200000}
	s := RiskSizer{RiskPerTradePct: 0.01, MaxPositionPct: 0.10}

	// $1000 risk / $5 per share = 200 shares, capped at $10k / $150 = 66.
	if got := s.Size(150, 145, mctx); got != 66 {
		t.Errorf("Size(150,145) = %v, want 66", got)
	}
	// $1000 risk / $0.5 per share = 2000, capped at $10k / $20 = 500.
	if got := s.Size(20, 19.5, mctx); got != 500 {
		t.Errorf("Size(20,19.5) = %v, want 500", got)
	}
	s.MaxPositionPct = 1
	if got := s.Size(100, 90, mctx); got != 100 {
		t.Errorf("Size(100,90) = %v, want 100", got)
	}
	if got := s.Size(100, 100, mctx); got != 0 {
		t.Errorf("zero-risk size = %v, want 0", got)
	}
}

func TestFallbackExit(t *testing.T) {
	long := domain.TrackedPosition{Ticker: "AAPL", Side: domain.SideLong, Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 94}
	d := DefaultFallbackExit.EvaluateExit(long, nil)
	if !d.ShouldExit || d.Urgency != domain.UrgencyImmediate {
		t.Errorf("long at -6%% should stop out immediately, got %+v", d)
	}

	long.CurrentPrice = 103
	if d := DefaultFallbackExit.EvaluateExit(long, nil); d.ShouldExit {
		t.Errorf("long at +3%% should hold, got %+v", d)
	}

	short := domain.TrackedPosition{Ticker: "TSLA", Side: domain.SideShort, Quantity: 5, AvgEntryPrice: 200, Target: 190}
	d = DefaultFallbackExit.EvaluateExit(short, &domain.TechnicalSignal{Price: 189})
	if !d.ShouldExit || d.Urgency != domain.UrgencyNormal {
		t.Errorf("short through recorded target should exit normally, got %+v", d)
	}
}
