// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"autotrader/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
//
// Evaluate methods are pure decisions over the supplied snapshot; they never
// talk to the broker. tech may be nil when no technical signal could be
// obtained for the ticker.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// EvaluateEntry decides whether a queued signal should be entered.
	EvaluateEntry(sig domain.PendingSignal, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.EntryDecision

	// EvaluateExit decides whether an open position should be closed.
	EvaluateExit(pos domain.TrackedPosition, tech *domain.TechnicalSignal, mctx domain.MarketContext) domain.ExitDecision

	// CalculatePositionSize returns the share quantity for an entry at entry
	// protected by stop.
	CalculatePositionSize(entry, stop float64, mctx domain.MarketContext) float64

	// MarshalState serializes the strategy's private per-ticker state.
	MarshalState() (json.RawMessage, error)

	// UnmarshalState replaces the private state with a previously marshaled
	// blob. An empty blob resets it.
	UnmarshalState(data json.RawMessage) error
}

// RoundTripObserver is implemented by strategies that learn from completed
// trades. The engine calls OnRoundTrip after every executed exit.
type RoundTripObserver interface {
	OnRoundTrip(ticker string, pnl float64)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	// State blobs for strategies that are not registered in this process.
	// They are carried through so a checkpoint round-trips unchanged.
	orphans map[string]json.RawMessage
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		orphans:    make(map[string]json.RawMessage),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
	if blob, ok := r.orphans[s.Name()]; ok {
		_ = s.UnmarshalState(blob)
		delete(r.orphans, s.Name())
	}
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalState collects every strategy's state blob keyed by name.
func (r *Registry) MarshalState() (map[string]json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(r.strategies)+len(r.orphans))
	for name, blob := range r.orphans {
		out[name] = blob
	}
	for name, s := range r.strategies {
		blob, err := s.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("marshaling %s state: %w", name, err)
		}
		out[name] = blob
	}
	return out, nil
}

// UnmarshalState restores state blobs produced by MarshalState. Blobs for
// unregistered strategies are held until such a strategy registers.
func (r *Registry) UnmarshalState(state map[string]json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = make(map[string]json.RawMessage)
	for name, blob := range state {
		s, ok := r.strategies[name]
		if !ok {
			r.orphans[name] = blob
			continue
		}
		if err := s.UnmarshalState(blob); err != nil {
			return fmt.Errorf("restoring %s state: %w", name, err)
		}
	}
	return nil
}
