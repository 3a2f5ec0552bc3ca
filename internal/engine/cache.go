package engine

import (
	"sync"
	"time"

	"autotrader/internal/domain"
)

type cachedSignal struct {
	sig     *domain.TechnicalSignal
	fetched time.Time
}

// signalCache memoizes technical signals within a cycle. Entries older than
// ttl are refetched; the whole cache is cleared when a cycle starts.
type signalCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedSignal
}

func newSignalCache(ttl time.Duration) *signalCache {
	return &signalCache{ttl: ttl, entries: make(map[string]cachedSignal)}
}

func (c *signalCache) get(ticker string, now time.Time) (*domain.TechnicalSignal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ticker]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.Sub(e.fetched) > c.ttl {
		delete(c.entries, ticker)
		return nil, false
	}
	return e.sig, true
}

func (c *signalCache) put(ticker string, sig *domain.TechnicalSignal, now time.Time) {
	c.mu.Lock()
	c.entries[ticker] = cachedSignal{sig: sig, fetched: now}
	c.mu.Unlock()
}

func (c *signalCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cachedSignal)
	c.mu.Unlock()
}
