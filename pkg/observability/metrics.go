package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Unit outcomes
const (
	UnitSuccess = "success"
	UnitEmpty   = "empty"
	UnitFailed  = "failed"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// UnitsTotal counts fetch units by outcome
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_units_total",
			Help: "Total number of fetch units processed",
		},
		[]string{"dataset", "status"}, // status: success, empty, failed
	)

	// UnitDuration measures how long a single fetch unit takes
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geofetch_unit_duration_seconds",
			Help:    "Fetch unit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"dataset"},
	)

	// UnitsRunning tracks fetch units currently in flight
	UnitsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geofetch_units_running",
			Help: "Number of fetch units currently running",
		},
		[]string{"dataset"},
	)

	// FilesDownloaded counts distinct files produced by fetch units
	FilesDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_files_downloaded_total",
			Help: "Total number of files produced by fetch units",
		},
		[]string{"dataset"},
	)

	// MissingDates counts dates no fetch unit could satisfy
	MissingDates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_missing_dates_total",
			Help: "Total number of requested dates that could not be fetched",
		},
		[]string{"dataset"},
	)

	// ExtantDatesFiltered counts dates skipped because output already holds them
	ExtantDatesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_extant_dates_filtered_total",
			Help: "Total number of requested dates already present in output",
		},
		[]string{"dataset"},
	)

	// Consolidations counts canonical file writes
	Consolidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_consolidations_total",
			Help: "Total number of canonical file writes",
		},
		[]string{"dataset", "action"}, // action: write, merge
	)

	// ScheduledRuns counts watch-mode job executions
	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_scheduled_runs_total",
			Help: "Total number of scheduled acquisition runs",
		},
		[]string{"job", "status"}, // status: success, failed
	)

	// SourceCacheHits tracks search cache hits
	SourceCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_source_cache_hits_total",
			Help: "Total number of source search cache hits",
		},
		[]string{"source"},
	)

	// SourceCacheMisses tracks search cache misses
	SourceCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_source_cache_misses_total",
			Help: "Total number of source search cache misses",
		},
		[]string{"source"},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofetch_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordUnitStart records the start of a fetch unit
func RecordUnitStart(dataset string) {
	UnitsRunning.WithLabelValues(dataset).Inc()
}

// RecordUnitComplete records fetch unit completion
func RecordUnitComplete(dataset, status string, duration float64) {
	UnitsRunning.WithLabelValues(dataset).Dec()
	UnitsTotal.WithLabelValues(dataset, status).Inc()
	UnitDuration.WithLabelValues(dataset).Observe(duration)
}

// RecordRunTotals records the aggregate outcome of an acquisition run
func RecordRunTotals(dataset string, files, missing int) {
	FilesDownloaded.WithLabelValues(dataset).Add(float64(files))
	MissingDates.WithLabelValues(dataset).Add(float64(missing))
}

// RecordExtantFiltered records dates removed by the extant filter
func RecordExtantFiltered(dataset string, count int) {
	ExtantDatesFiltered.WithLabelValues(dataset).Add(float64(count))
}

// RecordConsolidation records a canonical file write
func RecordConsolidation(dataset, action string) {
	Consolidations.WithLabelValues(dataset, action).Inc()
}

// RecordScheduledRun records a watch-mode job execution
func RecordScheduledRun(job, status string) {
	ScheduledRuns.WithLabelValues(job, status).Inc()
}

// RecordSourceCacheHit records a search cache hit
func RecordSourceCacheHit(source string) {
	SourceCacheHits.WithLabelValues(source).Inc()
}

// RecordSourceCacheMiss records a search cache miss
func RecordSourceCacheMiss(source string) {
	SourceCacheMisses.WithLabelValues(source).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
