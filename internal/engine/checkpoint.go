package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/store"
)

// CheckpointVersion is the version written by this build. Version 1 blobs
// predate strategy_state and orders; both default to empty on load.
const CheckpointVersion = 2

// Checkpoint is the persisted engine snapshot used for crash recovery.
type Checkpoint struct {
	Version       int                        `json:"version"`
	Timestamp     time.Time                  `json:"timestamp"`
	SignalQueue   []domain.PendingSignal     `json:"signal_queue"`
	Positions     []domain.TrackedPosition   `json:"positions"`
	Cooldowns     []domain.CooldownEntry     `json:"cooldowns"`
	Orders        []PendingOrder             `json:"orders"`
	StrategyState map[string]json.RawMessage `json:"strategy_state"`
}

// CheckpointStore persists encoded checkpoints. LoadCheckpoint returns
// store.ErrNoCheckpoint when nothing has been saved yet.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, data []byte) error
	LoadCheckpoint(ctx context.Context) ([]byte, error)
}

// EncodeCheckpoint serializes cp.
func EncodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

// DecodeCheckpoint parses a checkpoint blob. Fields missing from older
// versions are defaulted to empty values rather than failing.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	if cp.Version > CheckpointVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", cp.Version, CheckpointVersion)
	}
	if cp.Version == 0 {
		cp.Version = 1
	}
	if cp.SignalQueue == nil {
		cp.SignalQueue = []domain.PendingSignal{}
	}
	if cp.Positions == nil {
		cp.Positions = []domain.TrackedPosition{}
	}
	if cp.Cooldowns == nil {
		cp.Cooldowns = []domain.CooldownEntry{}
	}
	if cp.Orders == nil {
		cp.Orders = []PendingOrder{}
	}
	if cp.StrategyState == nil {
		cp.StrategyState = map[string]json.RawMessage{}
	}
	return &cp, nil
}

// Checkpoint captures the engine's recoverable state.
func (e *Engine) Checkpoint() (*Checkpoint, error) {
	state, err := e.strategies.MarshalState()
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Version:       CheckpointVersion,
		Timestamp:     e.now(),
		SignalQueue:   e.queue.Items(),
		Positions:     e.tracker.Positions(),
		Cooldowns:     e.cooldowns.Snapshot(),
		Orders:        e.pendingOrders(),
		StrategyState: state,
	}, nil
}

// Restore replaces the engine's state with cp. Broker truth still wins: the
// next cycle's sync reconciles restored positions.
func (e *Engine) Restore(cp *Checkpoint) error {
	if err := e.strategies.UnmarshalState(cp.StrategyState); err != nil {
		return err
	}
	dropped := len(cp.SignalQueue) - e.queue.Restore(cp.SignalQueue)
	e.tracker.Restore(cp.Positions)
	e.cooldowns.Restore(cp.Cooldowns)

	e.mu.Lock()
	e.pending = make(map[string]PendingOrder, len(cp.Orders))
	for _, o := range cp.Orders {
		e.pending[o.Ticker] = o
	}
	e.mu.Unlock()

	e.log.Info("checkpoint restored",
		"version", cp.Version, "taken_at", cp.Timestamp,
		"signals", len(cp.SignalQueue)-dropped, "signals_dropped", dropped,
		"positions", len(cp.Positions), "cooldowns", len(cp.Cooldowns), "orders", len(cp.Orders))
	return nil
}

// SaveCheckpoint writes the current state to the configured store.
func (e *Engine) SaveCheckpoint(ctx context.Context) error {
	if e.checkpoints == nil {
		return nil
	}
	cp, err := e.Checkpoint()
	if err != nil {
		return err
	}
	data, err := EncodeCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := e.checkpoints.SaveCheckpoint(ctx, data); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores the latest saved checkpoint. It reports false when
// the store holds none.
func (e *Engine) LoadCheckpoint(ctx context.Context) (bool, error) {
	if e.checkpoints == nil {
		return false, nil
	}
	data, err := e.checkpoints.LoadCheckpoint(ctx)
	if errors.Is(err, store.ErrNoCheckpoint) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading checkpoint: %w", err)
	}
	cp, err := DecodeCheckpoint(data)
	if err != nil {
		return false, err
	}
	return true, e.Restore(cp)
}
