// Package cooldown tracks the minimum no-re-entry window per ticker after a
// position exit.
package cooldown

import (
	"sort"
	"sync"
	"time"

	"autotrader/internal/domain"
)

// DefaultDuration is used when neither the caller nor the config supplies one.
const DefaultDuration = 30 * time.Minute

// Manager holds cooldown entries. Entries are never removed explicitly by
// callers; they stop applying once expired and are dropped by Prune. It is
// safe for concurrent use.
type Manager struct {
	mu              sync.RWMutex
	entries         map[string]domain.CooldownEntry
	defaultDuration time.Duration
	now             func() time.Time
}

// NewManager creates a Manager with the given default duration.
func NewManager(defaultDuration time.Duration) *Manager {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Manager{
		entries:         make(map[string]domain.CooldownEntry),
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// SetClock overrides the time source (tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// AddCooldown starts (or restarts) a cooldown for ticker. A non-positive
// duration uses the default.
func (m *Manager) AddCooldown(ticker, reason, strategyName string, duration time.Duration) domain.CooldownEntry {
	if duration <= 0 {
		duration = m.defaultDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := domain.CooldownEntry{
		Ticker:       ticker,
		Reason:       reason,
		StrategyName: strategyName,
		StartedAt:    now,
		ExpiresAt:    now.Add(duration),
	}
	m.entries[ticker] = e
	return e
}

// IsInCooldown reports whether ticker is in an active cooldown right now.
func (m *Manager) IsInCooldown(ticker string) bool {
	_, ok := m.GetCooldown(ticker)
	return ok
}

// GetCooldown returns the active cooldown for ticker, if any.
func (m *Manager) GetCooldown(ticker string) (domain.CooldownEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[ticker]
	if !ok || !e.Active(m.now()) {
		return domain.CooldownEntry{}, false
	}
	return e, true
}

// Active returns every active cooldown sorted by ticker.
func (m *Manager) Active() []domain.CooldownEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]domain.CooldownEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Active(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Tickers returns the set of tickers currently in cooldown.
func (m *Manager) Tickers() map[string]struct{} {
	active := m.Active()
	out := make(map[string]struct{}, len(active))
	for _, e := range active {
		out[e.Ticker] = struct{}{}
	}
	return out
}

// Prune drops expired entries and returns them, oldest expiry first.
func (m *Manager) Prune() []domain.CooldownEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var ended []domain.CooldownEntry
	for t, e := range m.entries {
		if !e.Active(now) {
			ended = append(ended, e)
			delete(m.entries, t)
		}
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].ExpiresAt.Before(ended[j].ExpiresAt) })
	return ended
}

// Restore replaces the entries with the given ones. Entries whose expiry is
// not after their start are ignored.
func (m *Manager) Restore(entries []domain.CooldownEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]domain.CooldownEntry, len(entries))
	for _, e := range entries {
		if !e.ExpiresAt.After(e.StartedAt) {
			continue
		}
		m.entries[e.Ticker] = e
	}
}

// Snapshot returns all stored entries, including expired ones not yet pruned.
func (m *Manager) Snapshot() []domain.CooldownEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.CooldownEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
