package algo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("cgcp.algo")

var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgcp_decomposition_iterations_total",
		Help: "Decomposition loop iterations",
	}, []string{"algorithm"})

	columnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgcp_columns_added_total",
		Help: "Columns added to master programs",
	}, []string{"algorithm"})

	stopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgcp_decomposition_stops_total",
		Help: "Decomposition runs by stop reason",
	}, []string{"algorithm", "reason"})

	masterSolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cgcp_master_solve_duration_seconds",
		Help:    "Master program solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"algorithm"})

	pricingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cgcp_pricing_duration_seconds",
		Help:    "Per-agent subproblem solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
	}, []string{"subproblem"})

	boundGap = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cgcp_bound_gap",
		Help: "Upper bound minus master objective at the last check",
	}, []string{"algorithm"})
)
