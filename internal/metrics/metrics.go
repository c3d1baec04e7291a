// Package metrics exposes the Prometheus counters/gauges the core updates
// during operation, named for the position-manager domain (the teacher's
// metrics.go used a bot_* prefix over trade decisions; this renames the
// same idiom to positions/signals/risk/store since this core has no
// decision-making signal generator of its own). ReconciliationsTotal and
// StoreWriteDuration are registered, but no code path updates them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PositionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "positions_opened_total",
			Help: "Positions opened, by symbol and direction.",
		},
		[]string{"symbol", "direction"},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "positions_closed_total",
			Help: "Positions closed, by symbol and reason.",
		},
		[]string{"symbol", "reason"},
	)

	RiskDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_decisions_total",
			Help: "Risk evaluator decisions, by decision kind.",
		},
		[]string{"decision"},
	)

	SignalsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_routed_total",
			Help: "Signals accepted or rejected by the router, by result.",
		},
		[]string{"result"},
	)

	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Reconciliation attempts after an adapter timeout, by outcome.",
		},
		[]string{"outcome"},
	)

	StoreWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_write_duration_seconds",
			Help:    "Duration of Position Store write operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	OpenPositionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "open_positions",
			Help: "Current number of open positions, by symbol.",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		PositionsOpened,
		PositionsClosed,
		RiskDecisions,
		SignalsRouted,
		ReconciliationsTotal,
		StoreWriteDuration,
		OpenPositionsGauge,
	)
}
