// Package queue implements the bounded priority queue of candidate trades
// awaiting evaluation. Entries are unique per ticker and become invisible once
// expired; expired entries are purged lazily whenever the queue is read.
package queue

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"autotrader/internal/domain"
)

// Defaults applied when the caller passes zero values to New.
const (
	DefaultMaxSize = 50
	DefaultTTL     = 30 * time.Minute
)

type item struct {
	sig   domain.PendingSignal
	seq   uint64
	index int
}

// signalHeap orders items by (priority, insertion sequence).
type signalHeap []*item

func (h signalHeap) Len() int { return len(h) }

func (h signalHeap) Less(i, j int) bool {
	if h[i].sig.Priority != h[j].sig.Priority {
		return h[i].sig.Priority < h[j].sig.Priority
	}
	return h[i].seq < h[j].seq
}

func (h signalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *signalHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *signalHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// SignalQueue is a bounded min-priority queue keyed by ticker. It is safe for
// concurrent use.
type SignalQueue struct {
	mu         sync.Mutex
	heap       signalHeap
	byTicker   map[string]*item
	nextSeq    uint64
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a SignalQueue.
type Option func(*SignalQueue)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(q *SignalQueue) { q.now = now }
}

// New creates a SignalQueue holding at most maxSize entries. Signals added
// without an expiry receive defaultTTL.
func New(maxSize int, defaultTTL time.Duration, opts ...Option) *SignalQueue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	q := &SignalQueue{
		byTicker:   make(map[string]*item),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Add inserts sig. It returns false if the ticker is already queued or the
// queue is full.
func (q *SignalQueue) Add(sig domain.PendingSignal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.purgeLocked(now)

	if _, dup := q.byTicker[sig.Ticker]; dup {
		return false
	}
	if len(q.heap) >= q.maxSize {
		return false
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.ExpiresAt.IsZero() {
		sig.ExpiresAt = sig.CreatedAt.Add(q.defaultTTL)
	}
	if sig.IsExpired(now) {
		return false
	}

	it := &item{sig: sig, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, it)
	q.byTicker[sig.Ticker] = it
	return true
}

// Peek returns the most urgent unexpired signal without removing it.
func (q *SignalQueue) Peek() (domain.PendingSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(q.now())
	if len(q.heap) == 0 {
		return domain.PendingSignal{}, false
	}
	return q.heap[0].sig, true
}

// Pop removes and returns the most urgent unexpired signal.
func (q *SignalQueue) Pop() (domain.PendingSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(q.now())
	if len(q.heap) == 0 {
		return domain.PendingSignal{}, false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.byTicker, it.sig.Ticker)
	return it.sig, true
}

// Remove drops the signal for ticker, reporting whether one was queued.
func (q *SignalQueue) Remove(ticker string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byTicker[ticker]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byTicker, ticker)
	return !it.sig.IsExpired(q.now())
}

// Contains reports whether an unexpired signal for ticker is queued.
func (q *SignalQueue) Contains(ticker string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(q.now())
	_, ok := q.byTicker[ticker]
	return ok
}

// Size returns the number of unexpired signals.
func (q *SignalQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(q.now())
	return len(q.heap)
}

// Items returns the unexpired signals in priority order without removing
// them.
func (q *SignalQueue) Items() []domain.PendingSignal {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.purgeLocked(q.now())
	items := make([]*item, len(q.heap))
	copy(items, q.heap)
	sort.Slice(items, func(i, j int) bool {
		return signalHeap(items).Less(i, j)
	})
	out := make([]domain.PendingSignal, len(items))
	for i, it := range items {
		out[i] = it.sig
	}
	return out
}

// Restore replaces the queue contents with signals, preserving their order
// as insertion order. Expired and duplicate signals are skipped. It returns
// the number of signals restored.
func (q *SignalQueue) Restore(signals []domain.PendingSignal) int {
	q.mu.Lock()
	q.heap = q.heap[:0]
	q.byTicker = make(map[string]*item)
	q.mu.Unlock()

	n := 0
	for _, s := range signals {
		if q.Add(s) {
			n++
		}
	}
	return n
}

// purgeLocked removes every expired entry. Must be called with mu held.
func (q *SignalQueue) purgeLocked(now time.Time) {
	var expired []*item
	for _, it := range q.heap {
		if it.sig.IsExpired(now) {
			expired = append(expired, it)
		}
	}
	for _, it := range expired {
		heap.Remove(&q.heap, it.index)
		delete(q.byTicker, it.sig.Ticker)
	}
}
