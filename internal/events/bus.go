package events

import (
	"log/slog"
	"sync"
)

// Bus forwards every event to its attached sinks (synchronously, in order)
// and to channel subscribers (non-blocking; slow subscribers drop events).
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewBus creates a Bus delivering to the given sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{
		sinks: sinks,
		subs:  make(map[int]chan Event),
	}
}

// Attach adds a sink.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit delivers e to every sink and subscriber.
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	for _, s := range b.sinks {
		s.Emit(e)
	}
	b.mu.RUnlock()

	b.broadcast(e)
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped.
func (b *Bus) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	b.subsMu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = ch
	b.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.subsMu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.subsMu.Unlock()
}

func (b *Bus) broadcast(e Event) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer, drop the event.
		}
	}
}

// LogSink writes each event as a structured log line.
func LogSink(log *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		attrs := []any{"id", e.ID, "type", string(e.Type)}
		if e.Ticker != "" {
			attrs = append(attrs, "ticker", e.Ticker)
		}
		if e.Side != "" {
			attrs = append(attrs, "side", string(e.Side))
		}
		if e.Quantity != 0 {
			attrs = append(attrs, "qty", e.Quantity)
		}
		if e.Reason != "" {
			attrs = append(attrs, "reason", e.Reason)
		}
		if e.Urgency != "" {
			attrs = append(attrs, "urgency", string(e.Urgency))
		}
		if e.PnL != 0 {
			attrs = append(attrs, "pnl", e.PnL)
		}
		if e.DryRun {
			attrs = append(attrs, "dry_run", true)
		}
		if e.Type == CycleComplete {
			attrs = append(attrs, "cycle", e.Cycle, "duration_ms", e.DurationMS,
				"exits", e.Exits, "entries", e.Entries, "errors", e.Errors)
		}
		log.Info("event", attrs...)
	})
}

// Recorder is an in-memory sink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
