package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cprqa_ingest_seconds",
		Help:    "Time spent parsing a device bundle.",
		Buckets: prometheus.DefBuckets,
	})

	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cprqa_ingest_total",
		Help: "Total number of bundle parses by result.",
	}, []string{"result"})

	IngestAbsentCellsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cprqa_ingest_cells_absent_total",
		Help: "Total number of numeric cells downgraded to absent during parsing.",
	})

	ScorePoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cprqa_score_points",
		Help:    "Distribution of scaled clinical quality scores.",
		Buckets: []float64{20, 40, 60, 70, 80, 90, 100},
	})

	WizardOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cprqa_wizard_operations_total",
		Help: "Total number of wizard state machine operations.",
	}, []string{"op", "template"})

	WizardValidationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cprqa_wizard_validation_errors_total",
		Help: "Total number of field validation errors returned by page saves.",
	}, []string{"template"})

	SchemaReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cprqa_schema_reloads_total",
		Help: "Total number of schema cache invalidations.",
	})

	ActivityFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cprqa_activity_failures_total",
		Help: "Total number of activity log writes that failed and were dropped.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cprqa_watcher_events_total",
		Help: "Total number of file system events received by the schema watcher.",
	})
)
