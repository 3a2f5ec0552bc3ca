package engine

import (
	"time"

	"autotrader/internal/domain"
)

// Status is a point-in-time view of the engine for the status API.
type Status struct {
	Time               time.Time                `json:"time"`
	DryRun             bool                     `json:"dry_run"`
	Stopped            bool                     `json:"stopped"`
	Strategies         []string                 `json:"strategies"`
	Positions          []domain.TrackedPosition `json:"positions"`
	Queue              []domain.PendingSignal   `json:"queue"`
	Cooldowns          []domain.CooldownEntry   `json:"cooldowns"`
	PendingOrders      []PendingOrder           `json:"pending_orders"`
	RecentClosed       []domain.TrackedPosition `json:"recent_closed"`
	StuckExits         []string                 `json:"stuck_exits,omitempty"`
	CircuitBreakerOpen bool                     `json:"circuit_breaker_open"`
	LastCycle          *CycleReport             `json:"last_cycle,omitempty"`
}

// Status snapshots the engine. It is safe to call while a cycle runs.
func (e *Engine) Status() Status {
	positions := e.tracker.Positions()
	var stuck []string
	for _, p := range positions {
		if !e.cfg.DryRun && p.ExitAttempts > e.cfg.MaxExitAttempts {
			stuck = append(stuck, p.Ticker)
		}
	}

	s := Status{
		Time:          e.now(),
		DryRun:        e.cfg.DryRun,
		Stopped:       e.stopped.Load(),
		Strategies:    e.strategies.List(),
		Positions:     positions,
		Queue:         e.queue.Items(),
		Cooldowns:     e.cooldowns.Active(),
		PendingOrders: e.pendingOrders(),
		RecentClosed:  e.tracker.GetClosedPositions(20),
		StuckExits:    stuck,
	}

	e.mu.Lock()
	s.CircuitBreakerOpen = e.breakerOpen
	if e.lastReport != nil {
		r := *e.lastReport
		s.LastCycle = &r
	}
	e.mu.Unlock()
	return s
}
