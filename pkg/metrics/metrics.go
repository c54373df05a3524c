package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Monitor metrics
	MonitorCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_monitor_cycles_total",
			Help: "Total number of monitor cycles by subject and outcome",
		},
		[]string{"subject", "outcome"},
	)

	MonitorCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_monitor_cycle_duration_seconds",
			Help:    "Monitor cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	ViolationsObserved = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_violations_observed",
			Help: "Violations detected in the most recent cycle by subject and severity",
		},
		[]string{"subject", "severity"},
	)

	// Ticket metrics
	TicketsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_tickets_created_total",
			Help: "Total number of tickets created",
		},
	)

	TicketsResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_tickets_resolved_total",
			Help: "Total number of tickets auto-resolved",
		},
	)

	TicketsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_tickets_open",
			Help: "Number of non-resolved tickets",
		},
	)

	// Rate limiter metrics
	LimiterChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_limiter_checks_total",
			Help: "Total number of rate limit checks by result",
		},
		[]string{"result"},
	)

	LimiterStoreFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_limiter_store_failures_total",
			Help: "Counter store failures that triggered the fail-open path",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(MonitorCyclesTotal)
	prometheus.MustRegister(MonitorCycleDuration)
	prometheus.MustRegister(ViolationsObserved)
	prometheus.MustRegister(TicketsCreatedTotal)
	prometheus.MustRegister(TicketsResolvedTotal)
	prometheus.MustRegister(TicketsOpen)
	prometheus.MustRegister(LimiterChecksTotal)
	prometheus.MustRegister(LimiterStoreFailures)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
