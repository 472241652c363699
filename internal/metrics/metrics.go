package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CostEventsRecorded tracks cost events written per service
	CostEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_cost_events_recorded_total",
			Help: "Total number of cost events recorded",
		},
		[]string{"service", "category"},
	)

	// CostEventErrors tracks failed cost event writes
	CostEventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_cost_event_errors_total",
			Help: "Total number of failed cost event writes",
		},
		[]string{"service"},
	)

	// AggregationRuns tracks episode aggregation passes
	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_aggregation_runs_total",
			Help: "Total number of cost aggregation passes",
		},
		[]string{"scope"},
	)

	// ProviderCallsTotal tracks AI provider calls
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_provider_calls_total",
			Help: "Total number of AI provider calls",
		},
		[]string{"provider", "operation"},
	)

	// ProviderErrorsTotal tracks AI provider errors by classification
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_provider_errors_total",
			Help: "Total number of AI provider errors",
		},
		[]string{"provider", "error_type"},
	)

	// ProviderLatency tracks AI provider call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podcasto_provider_latency_seconds",
			Help:    "AI provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// StageDuration tracks completed stage durations
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podcasto_stage_duration_seconds",
			Help:    "Episode processing stage duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	// StageFailures tracks stage failures by failure code
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_stage_failures_total",
			Help: "Total number of stage failures",
		},
		[]string{"stage", "code"},
	)

	// EpisodesProcessed tracks episodes reaching a terminal state
	EpisodesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podcasto_episodes_processed_total",
			Help: "Total number of episodes processed",
		},
		[]string{"status"},
	)

	// DBConnectionPoolUsage tracks database connection pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "podcasto_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
