// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DecisionsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_decisions_emitted_total",
		Help: "Decisions emitted to the execution component.",
	}, []string{"source", "action"})

	RiskRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_risk_rejections_total",
		Help: "Decisions dropped by the risk admission gate.",
	}, []string{"reason"})

	BreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "binarymm_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half open, 2 open.",
	})

	DailyPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "binarymm_daily_pnl_usd",
		Help: "Realised PnL since the last daily reset.",
	})

	AlertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_alerts_total",
		Help: "Risk alerts raised, by level.",
	}, []string{"level"})

	HedgesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "binarymm_hedges_issued_total",
		Help: "Corrective hedge decisions issued after fills.",
	})

	OpportunitiesFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_opportunities_found_total",
		Help: "Arbitrage opportunities reported by the scanner.",
	}, []string{"type"})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "binarymm_scan_duration_seconds",
		Help:    "Arbitrage scan latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	FeedReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_feed_reconnects_total",
		Help: "Websocket reconnect attempts per feed.",
	}, []string{"feed"})

	FeedFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_feed_fallbacks_total",
		Help: "Reads served from a fallback because the live value was stale.",
	}, []string{"source"})

	VenuePollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "binarymm_venue_poll_errors_total",
		Help: "Failed venue snapshot polls.",
	}, []string{"venue"})
)

// Collectors lists every collector in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		DecisionsEmitted, RiskRejections, BreakerState, DailyPnL, AlertsRaised,
		HedgesIssued, OpportunitiesFound, ScanDuration, FeedReconnects,
		FeedFallbacks, VenuePollErrors,
	}
}

var once sync.Once

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}
