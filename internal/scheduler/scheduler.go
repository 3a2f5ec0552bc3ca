// Package scheduler drives the scan, analyze and execute stages on their own
// intervals from a single tick loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stage names, in the order they run within a cycle.
const (
	StageScan    = "scan"
	StageAnalyze = "analyze"
	StageExecute = "execute"
)

// Order is the fixed evaluation order of stages.
var Order = []string{StageScan, StageAnalyze, StageExecute}

// Handler is a stage body. It is either a Sync or an Async; the scheduler
// dispatches both the same way and waits for async ones to finish.
type Handler interface {
	dispatch(ctx context.Context) error
}

// Sync is a handler that runs on the scheduler goroutine.
type Sync func(ctx context.Context) error

func (f Sync) dispatch(ctx context.Context) error { return f(ctx) }

// Async is a handler that starts work and reports completion on the returned
// channel. A nil channel counts as immediate success.
type Async func(ctx context.Context) <-chan error

func (f Async) dispatch(ctx context.Context) error {
	done := f(ctx)
	if done == nil {
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go wraps fn as an Async handler running on its own goroutine.
func Go(fn func(ctx context.Context) error) Async {
	return func(ctx context.Context) <-chan error {
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic: %v", r)
				}
			}()
			done <- fn(ctx)
		}()
		return done
	}
}

// StageConfig is the schedule of one stage.
type StageConfig struct {
	Interval time.Duration
	Enabled  bool
}

type stage struct {
	name     string
	cfg      StageConfig
	handler  Handler
	lastRun  time.Time
	runs     int
	failures int
	lastErr  error
}

// StageStatus reports one stage's run history.
type StageStatus struct {
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	Interval  time.Duration `json:"interval"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	RunCount  int           `json:"run_count"`
	Failures  int           `json:"failures"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler runs registered stages in Order. It is safe for concurrent use,
// but cycles never overlap.
type Scheduler struct {
	mu      sync.Mutex
	cycleMu sync.Mutex
	stages  map[string]*stage
	log     *slog.Logger
	now     func() time.Time
}

// New creates an empty Scheduler.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		stages: make(map[string]*stage),
		log:    log.With("component", "scheduler"),
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Register installs the handler for a stage, replacing any previous one and
// resetting its history. Names outside Order are rejected.
func (s *Scheduler) Register(name string, cfg StageConfig, h Handler) error {
	known := false
	for _, n := range Order {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown stage %q", name)
	}
	if h == nil {
		return fmt.Errorf("stage %q: nil handler", name)
	}
	s.mu.Lock()
	s.stages[name] = &stage{name: name, cfg: cfg, handler: h}
	s.mu.Unlock()
	return nil
}

// ShouldRun reports whether the named stage is due at now: it is enabled and
// has either never run or last ran at least one interval ago.
func (s *Scheduler) ShouldRun(name string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stages[name]
	if !ok {
		return false
	}
	return st.due(now)
}

func (st *stage) due(now time.Time) bool {
	if !st.cfg.Enabled {
		return false
	}
	return st.lastRun.IsZero() || now.Sub(st.lastRun) >= st.cfg.Interval
}

// RunCycle runs every due stage once, in order. A failing or panicking stage
// is logged and does not count as a run; later stages still run. The joined
// stage errors are returned.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	var errs []error
	for _, name := range Order {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		s.mu.Lock()
		st, ok := s.stages[name]
		now := s.now()
		due := ok && st.due(now)
		var h Handler
		if due {
			h = st.handler
		}
		s.mu.Unlock()
		if !due {
			continue
		}

		start := now
		err := s.dispatch(ctx, name, h)

		s.mu.Lock()
		if err != nil {
			st.failures++
			st.lastErr = err
		} else {
			st.runs++
			st.lastRun = start
			st.lastErr = nil
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Error("stage failed", "stage", name, "error", err)
			errs = append(errs, fmt.Errorf("stage %s: %w", name, err))
			continue
		}
		s.log.Debug("stage complete", "stage", name, "elapsed", s.now().Sub(start))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) dispatch(ctx context.Context, name string, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("stage panicked", "stage", name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.dispatch(ctx)
}

// Run calls RunCycle immediately and then on every tick until ctx is done.
// Stage failures are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", tick)
	}
	s.log.Info("scheduler started", "tick", tick)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		_ = s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCount returns how many times the named stage has completed successfully.
func (s *Scheduler) RunCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stages[name]; ok {
		return st.runs
	}
	return 0
}

// Status returns every registered stage's history in run order.
func (s *Scheduler) Status() []StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StageStatus
	for _, name := range Order {
		st, ok := s.stages[name]
		if !ok {
			continue
		}
		ss := StageStatus{
			Name:     name,
			Enabled:  st.cfg.Enabled,
			Interval: st.cfg.Interval,
			LastRun:  st.lastRun,
			RunCount: st.runs,
			Failures: st.failures,
		}
		if st.lastErr != nil {
			ss.LastError = st.lastErr.Error()
		}
		out = append(out, ss)
	}
	return out
}
