// Package metrics exposes the engine's Prometheus collectors:
//
//	autotrader_cycles_total{result}            cycles run (ok|error)
//	autotrader_cycle_duration_seconds          cycle latency histogram
//	autotrader_orders_total{side,result}       order submissions by outcome
//	autotrader_exits_total{urgency}            executed exits
//	autotrader_entries_total{strategy,result}  entry decisions by outcome
//	autotrader_open_positions                  tracked open positions
//	autotrader_queue_depth                     queued signals
//	autotrader_circuit_breaker_open            1 while the daily-loss breaker is tripped
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors.
type Metrics struct {
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	orders         *prometheus.CounterVec
	exits          *prometheus.CounterVec
	entries        *prometheus.CounterVec
	openPositions  prometheus.Gauge
	queueDepth     prometheus.Gauge
	circuitBreaker prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_cycles_total",
			Help: "Execution cycles run",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_cycle_duration_seconds",
			Help:    "Execution cycle latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_orders_total",
			Help: "Order submissions split by side and result",
		}, []string{"side", "result"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_exits_total",
			Help: "Executed exits split by urgency",
		}, []string{"urgency"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_entries_total",
			Help: "Entry decisions split by strategy and result",
		}, []string{"strategy", "result"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_open_positions",
			Help: "Open positions tracked",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_queue_depth",
			Help: "Signals waiting in the queue",
		}),
		circuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_circuit_breaker_open",
			Help: "1 while the daily loss circuit breaker blocks entries",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.cycleDuration, m.orders, m.exits,
			m.entries, m.openPositions, m.queueDepth, m.circuitBreaker)
	}
	return m
}

// ObserveCycle records one cycle.
func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// Order counts an order submission. result is submitted|rejected|dry_run.
func (m *Metrics) Order(side, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, result).Inc()
}

// Exit counts an executed exit.
func (m *Metrics) Exit(urgency string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(urgency).Inc()
}

// Entry counts an entry decision. result is accepted|rejected.
func (m *Metrics) Entry(strategyName, result string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(strategyName, result).Inc()
}

// SetState updates the point-in-time gauges.
func (m *Metrics) SetState(openPositions, queueDepth int, breakerOpen bool) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(openPositions))
	m.queueDepth.Set(float64(queueDepth))
	if breakerOpen {
		m.circuitBreaker.Set(1)
	} else {
		m.circuitBreaker.Set(0)
	}
}
