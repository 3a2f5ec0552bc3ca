package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle(time.Second, nil)
	m.Order("buy", "submitted")
	m.Exit("urgent")
	m.Entry("momentum", "accepted")
	m.SetState(1, 2, true)
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle(100*time.Millisecond, nil)
	m.ObserveCycle(100*time.Millisecond, errors.New("boom"))
	m.Order("buy", "submitted")
	m.Entry("breakout", "rejected")
	m.Entry("breakout", "rejected")
	m.SetState(3, 7, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entries.WithLabelValues("breakout", "rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.openPositions))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitBreaker))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["autotrader_cycle_duration_seconds"])
	assert.True(t, names["autotrader_orders_total"])
}
