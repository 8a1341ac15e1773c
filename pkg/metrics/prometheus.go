// Package metrics provides Prometheus metrics for the fastbreak pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Stage metrics
	stageRuns          *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	recordsProcessed   *prometheus.CounterVec
	recordsQuarantined *prometheus.CounterVec

	// Feed metrics
	fetchRequests *prometheus.CounterVec
	fetchLatency  prometheus.Histogram

	// Object store metrics
	storeOperations *prometheus.CounterVec

	// Event routing metrics
	eventsPublished prometheus.Counter
	eventsHandled   *prometheus.CounterVec

	// Commit metrics
	markersWritten  prometheus.Counter
	markerRaces     prometheus.Counter
	indexAdvanced   prometheus.Counter
	indexHeld       prometheus.Counter
	indexLatestDate prometheus.Gauge

	// Served artifact metrics
	artifactsRendered *prometheus.CounterVec
	artifactsDegraded *prometheus.CounterVec
	artifactBytes     *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry()

func init() {
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fastbreak",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.stageRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_runs_total",
			Help:      "Total number of stage runs by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	m.stageDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Stage run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	m.recordsProcessed = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "records_processed_total",
			Help:      "Total number of records processed by stage",
		},
		[]string{"stage"},
	)

	m.recordsQuarantined = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "records_quarantined_total",
			Help:      "Total number of records diverted to quarantine by stage",
		},
		[]string{"stage"},
	)

	m.fetchRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "fetch_requests_total",
			Help:      "Total number of upstream feed fetches by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "Upstream feed fetch latency in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
	})

	m.storeOperations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_operations_total",
			Help:      "Total number of object store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	m.eventsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_published_total",
		Help:      "Total number of object events published",
	})

	m.eventsHandled = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_handled_total",
			Help:      "Total number of object events handled by handler and outcome",
		},
		[]string{"handler", "outcome"},
	)

	m.markersWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ready_markers_written_total",
		Help:      "Total number of daily ready markers created",
	})

	m.markerRaces = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ready_marker_races_total",
		Help:      "Total number of marker writes lost to a concurrent run",
	})

	m.indexAdvanced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_advanced_total",
		Help:      "Total number of times the served index moved forward",
	})

	m.indexHeld = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_held_total",
		Help:      "Total number of index writes skipped because the date was not newer",
	})

	m.indexLatestDate = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_latest_date_seconds",
		Help:      "Unix time of the business date currently published in the index",
	})

	m.artifactsRendered = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "artifacts_rendered_total",
			Help:      "Total number of served artifact bodies written by type",
		},
		[]string{"artifact_type"},
	)

	m.artifactsDegraded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "artifacts_degraded_total",
			Help:      "Total number of artifact bodies that dropped detail to stay under the size bound",
		},
		[]string{"artifact_type"},
	)

	m.artifactBytes = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "artifact_bytes",
			Help:      "Size of rendered artifact bodies in bytes",
			Buckets:   []float64{1024, 4096, 16384, 32768, 65536, 90112, 102400},
		},
		[]string{"artifact_type"},
	)
}

// RecordStageRun counts one stage run with its outcome.
func RecordStageRun(stage, outcome string) {
	globalManager.stageRuns.WithLabelValues(stage, outcome).Inc()
}

// ObserveStageDuration records a stage run duration in seconds.
func ObserveStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddRecordsProcessed adds to the processed counter for a stage.
func AddRecordsProcessed(stage string, n int) {
	globalManager.recordsProcessed.WithLabelValues(stage).Add(float64(n))
}

// AddRecordsQuarantined adds to the quarantined counter for a stage.
func AddRecordsQuarantined(stage string, n int) {
	globalManager.recordsQuarantined.WithLabelValues(stage).Add(float64(n))
}

// RecordFetch counts one upstream fetch by resource and outcome.
func RecordFetch(resource, outcome string) {
	globalManager.fetchRequests.WithLabelValues(resource, outcome).Inc()
}

// ObserveFetchLatency records upstream fetch latency in milliseconds.
func ObserveFetchLatency(latencyMs float64) {
	globalManager.fetchLatency.Observe(latencyMs)
}

// RecordStoreOperation counts one object store operation.
func RecordStoreOperation(op, outcome string) {
	globalManager.storeOperations.WithLabelValues(op, outcome).Inc()
}

// RecordEventPublished counts one published object event.
func RecordEventPublished() {
	globalManager.eventsPublished.Inc()
}

// RecordEventHandled counts one handled object event.
func RecordEventHandled(handler, outcome string) {
	globalManager.eventsHandled.WithLabelValues(handler, outcome).Inc()
}

// RecordMarkerWritten counts one created daily ready marker.
func RecordMarkerWritten() {
	globalManager.markersWritten.Inc()
}

// RecordMarkerRace counts one marker write lost to a concurrent run.
func RecordMarkerRace() {
	globalManager.markerRaces.Inc()
}

// RecordIndexAdvanced counts one forward move of the served index.
func RecordIndexAdvanced() {
	globalManager.indexAdvanced.Inc()
}

// RecordIndexHeld counts one skipped index write for a non-newer date.
func RecordIndexHeld() {
	globalManager.indexHeld.Inc()
}

// SetIndexLatestDate sets the gauge to the published business date.
func SetIndexLatestDate(t time.Time) {
	globalManager.indexLatestDate.Set(float64(t.Unix()))
}

// RecordArtifactRendered counts one written artifact body.
func RecordArtifactRendered(artifactType string) {
	globalManager.artifactsRendered.WithLabelValues(artifactType).Inc()
}

// RecordArtifactDegraded counts one body that dropped detail to fit.
func RecordArtifactDegraded(artifactType string) {
	globalManager.artifactsDegraded.WithLabelValues(artifactType).Inc()
}

// ObserveArtifactBytes records the rendered size of one artifact body.
func ObserveArtifactBytes(artifactType string, n int) {
	globalManager.artifactBytes.WithLabelValues(artifactType).Observe(float64(n))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler returns an http.Handler serving the custom registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
