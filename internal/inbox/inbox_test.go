package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/domain"
)

type collector struct {
	recs    []domain.Recommendation
	sources []string
	reject  map[string]bool
}

func (c *collector) enqueue(rec domain.Recommendation, source string) bool {
	c.recs = append(c.recs, rec)
	c.sources = append(c.sources, source)
	return !c.reject[rec.Ticker]
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestParseRecommendationsSingleAndArray(t *testing.T) {
	one, err := ParseRecommendations([]byte(`{"ticker":"aapl","trade_type":"long","entry_point":150,"stop_loss":145,"target_price":160,"risk_reward_ratio":2}`), nil)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "AAPL", one[0].Ticker)
	assert.Equal(t, 145.0, one[0].StopLoss)
	assert.Equal(t, 2.0, one[0].RiskRewardRatio)

	many, err := ParseRecommendations([]byte(` [
		{"ticker":"MSFT","trade_type":"short"},
		{"trade_type":"long"},
		{"ticker":"TSLA","trade_type":"long","quantity":"5"}
	]`), nil)
	require.NoError(t, err)
	require.Len(t, many, 2, "entry without ticker dropped")
	assert.Equal(t, "MSFT", many[0].Ticker)
	assert.Equal(t, 5.0, many[1].Quantity, "numeric strings accepted")
}

func TestParseRecommendationsMalformedOptionalFields(t *testing.T) {
	recs, err := ParseRecommendations([]byte(`{"ticker":"NVDA","trade_type":"long","entry_point":"n/a","stop_loss":"$480.5","target_price":{"x":1},"strategy":7,"confidence":null}`), nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Zero(t, r.EntryPoint)
	assert.Equal(t, 480.5, r.StopLoss)
	assert.Zero(t, r.TargetPrice)
	assert.Empty(t, r.Strategy)
	assert.Zero(t, r.Confidence)
}

func TestParseRecommendationsInvalid(t *testing.T) {
	_, err := ParseRecommendations([]byte(`   `), nil)
	assert.Error(t, err)
	_, err = ParseRecommendations([]byte(`{"ticker":`), nil)
	assert.Error(t, err)
	_, err = ParseRecommendations([]byte(`"AAPL"`), nil)
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `[{"ticker":"MSFT","trade_type":"short"},{"ticker":"AAPL","trade_type":"long"}]`)
	writeFile(t, dir, "a.json", `{"ticker":"TSLA","trade_type":"long"}`)
	writeFile(t, dir, "broken.json", `{not json`)
	writeFile(t, dir, "notes.txt", `ignored`)

	c := &collector{reject: map[string]bool{"AAPL": true}}
	in := New(dir, c.enqueue, nil)

	res, err := in.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Files: 3, Recommendations: 3, Enqueued: 2, Skipped: 1, Failed: 1}, res)

	require.Len(t, c.recs, 3)
	assert.Equal(t, "TSLA", c.recs[0].Ticker, "files processed in name order")
	assert.Equal(t, "inbox:a", c.sources[0])
	assert.Equal(t, "inbox:b", c.sources[1])

	assert.FileExists(t, filepath.Join(dir, processedDir, "a.json"))
	assert.FileExists(t, filepath.Join(dir, processedDir, "b.json"))
	assert.FileExists(t, filepath.Join(dir, failedDir, "broken.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))

	// A second pass finds nothing; a re-dropped name does not clobber the
	// processed copy.
	res, err = in.Ingest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Files)

	writeFile(t, dir, "a.json", `{"ticker":"AMD","trade_type":"long"}`)
	_, err = in.Ingest(context.Background())
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(dir, processedDir, "*a.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIngestCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	in := New(dir, func(domain.Recommendation, string) bool { return true }, nil)

	res, err := in.Ingest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.DirExists(t, dir)
}

func TestIngestCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"ticker":"TSLA","trade_type":"long"}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dir, func(domain.Recommendation, string) bool { return true }, nil).Ingest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, filepath.Join(dir, "a.json"))
}
