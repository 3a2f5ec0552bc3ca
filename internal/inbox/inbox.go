// Package inbox ingests recommendation files dropped by the external
// recommender into a watched directory.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"autotrader/internal/domain"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// EnqueueFunc hands one recommendation to the engine. It reports whether the
// recommendation was queued.
type EnqueueFunc func(rec domain.Recommendation, source string) bool

// Result summarizes one Ingest pass.
type Result struct {
	Files           int `json:"files"`
	Recommendations int `json:"recommendations"`
	Enqueued        int `json:"enqueued"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
}

// Inbox reads *.json files from a directory. Each file holds one
// recommendation object or an array of them. Handled files move to
// processed/, unparseable ones to failed/.
type Inbox struct {
	dir     string
	enqueue EnqueueFunc
	log     *slog.Logger
	now     func() time.Time
}

// New creates an Inbox over dir.
func New(dir string, enqueue EnqueueFunc, log *slog.Logger) *Inbox {
	if log == nil {
		log = slog.Default()
	}
	return &Inbox{
		dir:     dir,
		enqueue: enqueue,
		log:     log.With("component", "inbox"),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (in *Inbox) SetClock(now func() time.Time) { in.now = now }

// Dir returns the watched directory.
func (in *Inbox) Dir() string { return in.dir }

// Ingest processes every pending file in name order.
func (in *Inbox) Ingest(ctx context.Context) (Result, error) {
	var res Result
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return res, fmt.Errorf("creating inbox %s: %w", in.dir, err)
	}

	paths, err := filepath.Glob(filepath.Join(in.dir, "*.json"))
	if err != nil {
		return res, fmt.Errorf("listing inbox: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Files++
		name := filepath.Base(path)

		data, err := os.ReadFile(path)
		if err != nil {
			in.log.Warn("reading inbox file", "file", name, "error", err)
			res.Failed++
			continue
		}

		recs, err := ParseRecommendations(data, in.log.With("file", name))
		if err != nil {
			in.log.Warn("unparseable inbox file", "file", name, "error", err)
			res.Failed++
			if err := in.move(path, failedDir); err != nil {
				in.log.Error("moving inbox file", "file", name, "error", err)
			}
			continue
		}

		source := "inbox:" + strings.TrimSuffix(name, ".json")
		for _, rec := range recs {
			res.Recommendations++
			if in.enqueue(rec, source) {
				res.Enqueued++
			} else {
				res.Skipped++
			}
		}
		if err := in.move(path, processedDir); err != nil {
			return res, fmt.Errorf("moving %s: %w", name, err)
		}
	}

	if res.Files > 0 {
		in.log.Info("inbox ingested",
			"files", res.Files,
			"recommendations", res.Recommendations,
			"enqueued", res.Enqueued,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}

// move renames path into sub, prefixing a timestamp if the name is taken.
func (in *Inbox) move(path, sub string) error {
	destDir := filepath.Join(in.dir, sub)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(destDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(destDir, in.now().UTC().Format("20060102T150405.000")+"_"+filepath.Base(path))
	}
	return os.Rename(path, dest)
}

// ParseRecommendations decodes a single recommendation object or an array of
// them. Entries without a ticker are dropped. Optional fields that are
// present but malformed are logged at debug level and left zero; numeric
// fields may also be given as strings.
func ParseRecommendations(data []byte, log *slog.Logger) ([]domain.Recommendation, error) {
	if log == nil {
		log = slog.Default()
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}

	var raws []map[string]json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
	} else {
		var one map[string]json.RawMessage
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		raws = append(raws, one)
	}

	out := make([]domain.Recommendation, 0, len(raws))
	for i, raw := range raws {
		var rec domain.Recommendation
		rec.Ticker = strings.ToUpper(strings.TrimSpace(stringField(raw, "ticker", log)))
		if rec.Ticker == "" {
			log.Debug("recommendation without ticker dropped", "index", i)
			continue
		}
		rec.TradeType = stringField(raw, "trade_type", log)
		rec.EntryCriteria = stringField(raw, "entry_criteria", log)
		rec.Strategy = stringField(raw, "strategy", log)
		rec.EntryPoint = numberField(raw, "entry_point", log)
		rec.StopLoss = numberField(raw, "stop_loss", log)
		rec.TargetPrice = numberField(raw, "target_price", log)
		rec.Quantity = numberField(raw, "quantity", log)
		rec.RiskRewardRatio = numberField(raw, "risk_reward_ratio", log)
		rec.Confidence = numberField(raw, "confidence", log)
		out = append(out, rec)
	}
	return out, nil
}

func stringField(raw map[string]json.RawMessage, key string, log *slog.Logger) string {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		log.Debug("malformed field skipped", "field", key, "value", string(v))
		return ""
	}
	return s
}

func numberField(raw map[string]json.RawMessage, key string, log *slog.Logger) float64 {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	log.Debug("malformed field skipped", "field", key, "value", string(v))
	return 0
}
