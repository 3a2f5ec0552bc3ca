package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"autotrader/internal/domain"
)

// Compile-time interface check.
var _ ClosedPositionStore = (*ParquetStore)(nil)

// ParquetStore archives closed positions as Parquet files on disk, one file
// per UTC close date.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// ClosedRecord is the Parquet schema for a closed position.
type ClosedRecord struct {
	Ticker        string  `parquet:"ticker"`
	Side          string  `parquet:"side"`
	Quantity      float64 `parquet:"quantity"`
	AvgEntryPrice float64 `parquet:"avg_entry_price"`
	ExitPrice     float64 `parquet:"exit_price"`
	RealizedPnL   float64 `parquet:"realized_pnl"`
	StrategyName  string  `parquet:"strategy_name"`
	StopLoss      float64 `parquet:"stop_loss"`
	Target        float64 `parquet:"target"`
	ExitAttempts  int32   `parquet:"exit_attempts"`
	CloseReason   string  `parquet:"close_reason"`
	OpenedAt      int64   `parquet:"opened_at,timestamp(millisecond)"` // Unix ms
	ClosedAt      int64   `parquet:"closed_at,timestamp(millisecond)"` // Unix ms
}

func toClosedRecord(p domain.TrackedPosition) ClosedRecord {
	var opened int64
	if !p.OpenedAt.IsZero() {
		opened = p.OpenedAt.UnixMilli()
	}
	return ClosedRecord{
		Ticker:        p.Ticker,
		Side:          string(p.Side),
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		ExitPrice:     p.CurrentPrice,
		RealizedPnL:   p.RealizedPnL,
		StrategyName:  p.StrategyName,
		StopLoss:      p.StopLoss,
		Target:        p.Target,
		ExitAttempts:  int32(p.ExitAttempts),
		CloseReason:   p.CloseReason,
		OpenedAt:      opened,
		ClosedAt:      p.ClosedAt.UnixMilli(),
	}
}

func (r ClosedRecord) position() domain.TrackedPosition {
	p := domain.TrackedPosition{
		Ticker:        r.Ticker,
		Side:          domain.Side(r.Side),
		Quantity:      r.Quantity,
		AvgEntryPrice: r.AvgEntryPrice,
		StrategyName:  r.StrategyName,
		StopLoss:      r.StopLoss,
		Target:        r.Target,
		ExitAttempts:  int(r.ExitAttempts),
		CloseReason:   r.CloseReason,
		ClosedAt:      time.UnixMilli(r.ClosedAt).UTC(),
	}
	if r.OpenedAt != 0 {
		p.OpenedAt = time.UnixMilli(r.OpenedAt).UTC()
	}
	p.UpdatePrice(r.ExitPrice)
	p.RealizedPnL = r.RealizedPnL
	return p
}

// ---------------------------------------------------------------------------
// ClosedPositionStore implementation
// ---------------------------------------------------------------------------

// AppendClosed merges closed positions into their daily files at:
//
//	<DataDir>/closed/<YYYY-MM-DD>.parquet
func (s *ParquetStore) AppendClosed(_ context.Context, closed []domain.TrackedPosition) error {
	if len(closed) == 0 {
		return nil
	}

	groups := make(map[string][]ClosedRecord)
	for _, p := range closed {
		date := p.ClosedAt.UTC().Format("2006-01-02")
		groups[date] = append(groups[date], toClosedRecord(p))
	}

	for date, records := range groups {
		t, _ := time.Parse("2006-01-02", date)
		path := s.closedPath(t)

		existing, _ := readParquetFile[ClosedRecord](path)
		merged := mergeClosedRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing closed positions for %s: %w", date, err)
		}
	}
	return nil
}

// ReadClosed reads archived positions closed within [start, end], oldest first.
func (s *ParquetStore) ReadClosed(_ context.Context, start, end time.Time) ([]domain.TrackedPosition, error) {
	var out []domain.TrackedPosition
	first := time.Date(start.UTC().Year(), start.UTC().Month(), start.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[ClosedRecord](s.closedPath(d))
		if err != nil {
			// No file for this date.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.ClosedAt)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			out = append(out, r.position())
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// closedPath returns the filesystem path for a day's closed positions.
// Layout: <dataDir>/closed/<YYYY-MM-DD>.parquet
func (s *ParquetStore) closedPath(t time.Time) string {
	return filepath.Join(s.DataDir, "closed", t.UTC().Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeClosedRecords deduplicates records by (ticker, closed_at), preferring
// incoming records. Results are sorted by close time.
func mergeClosedRecords(existing, incoming []ClosedRecord) []ClosedRecord {
	type key struct {
		ticker   string
		closedAt int64
	}
	seen := make(map[key]ClosedRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Ticker, r.ClosedAt}] = r
	}
	for _, r := range incoming {
		seen[key{r.Ticker, r.ClosedAt}] = r
	}

	merged := make([]ClosedRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].ClosedAt != merged[j].ClosedAt {
			return merged[i].ClosedAt < merged[j].ClosedAt
		}
		return merged[i].Ticker < merged[j].Ticker
	})
	return merged
}
