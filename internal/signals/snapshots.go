package signals

import (
	"context"
	"strings"
	"sync"
	"time"

	"autotrader/internal/domain"
)

// Source is anything that can compute a TechnicalSignal for a ticker.
type Source interface {
	GetSignal(ctx context.Context, ticker string) (*domain.TechnicalSignal, error)
}

type snapshot struct {
	sig *domain.TechnicalSignal
	at  time.Time
}

// Snapshots keeps the latest signal per ticker. The scan stage refreshes it
// for the watchlist and the engine reads from it, so a fresh scan result is
// reused instead of refetching bars.
type Snapshots struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]snapshot
}

// NewSnapshots wraps src. Snapshots older than ttl are refetched on read.
func NewSnapshots(src Source, ttl time.Duration) *Snapshots {
	return &Snapshots{
		src:   src,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]snapshot),
	}
}

// SetClock overrides the time source (tests).
func (s *Snapshots) SetClock(now func() time.Time) { s.now = now }

// Refresh fetches a new signal for ticker and stores it.
func (s *Snapshots) Refresh(ctx context.Context, ticker string) (*domain.TechnicalSignal, error) {
	ticker = strings.ToUpper(ticker)
	sig, err := s.src.GetSignal(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.items[ticker] = snapshot{sig: sig, at: s.now()}
	s.mu.Unlock()
	return sig, nil
}

// GetSignal returns the stored snapshot while it is younger than the TTL and
// refreshes it otherwise.
func (s *Snapshots) GetSignal(ctx context.Context, ticker string) (*domain.TechnicalSignal, error) {
	if sig, ok := s.Latest(ticker); ok {
		return sig, nil
	}
	return s.Refresh(ctx, ticker)
}

// Latest returns the stored snapshot for ticker if it has not expired.
func (s *Snapshots) Latest(ticker string) (*domain.TechnicalSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[strings.ToUpper(ticker)]
	if !ok || s.now().Sub(snap.at) >= s.ttl {
		return nil, false
	}
	return snap.sig, true
}
