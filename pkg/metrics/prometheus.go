// Package metrics provides Prometheus metrics for the readiness service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Refresh cycle
	refreshCycles     *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	refreshState      prometheus.Gauge
	fetchLatency      *prometheus.HistogramVec
	metricUnavailable *prometheus.CounterVec
	metricMissing     *prometheus.CounterVec
	summarizeLatency  prometheus.Histogram
	summarizeErrors   prometheus.Counter
	persistErrors     prometheus.Counter
	readinessScore    prometheus.Gauge
	trainingLoad      prometheus.Gauge
	lastRefreshUnix   prometheus.Gauge

	// Ingestion
	samplesIngested  *prometheus.CounterVec
	samplesDuplicate prometheus.Counter
	storedRecords    *prometheus.GaugeVec

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "upready",
		subsystem:        "readiness",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	latency := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.refreshCycles = auto.NewCounterVec(m.counterOpts("refresh_cycles_total", "Refresh cycles by outcome"), []string{"outcome"})
	m.refreshDuration = auto.NewHistogram(m.histogramOpts("refresh_duration_milliseconds", "Refresh cycle wall time in milliseconds", latency))
	m.refreshState = auto.NewGauge(m.gaugeOpts("refresh_state", "Current refresh state (0 is idle)"))
	m.fetchLatency = auto.NewHistogramVec(m.histogramOpts("fetch_latency_milliseconds", "Per-metric fetch latency in milliseconds", latency), []string{"fetch"})
	m.metricUnavailable = auto.NewCounterVec(m.counterOpts("fetch_unavailable_total", "Fetches that produced no value"), []string{"fetch"})
	m.metricMissing = auto.NewCounterVec(m.counterOpts("metric_missing_total", "Required metrics missing at the completeness gate"), []string{"metric"})
	m.summarizeLatency = auto.NewHistogram(m.histogramOpts("summarize_latency_milliseconds", "Summarizer latency in milliseconds", latency))
	m.summarizeErrors = auto.NewCounter(m.counterOpts("summarize_errors_total", "Summarizer failures"))
	m.persistErrors = auto.NewCounter(m.counterOpts("persist_errors_total", "Readiness record write failures"))
	m.readinessScore = auto.NewGauge(m.gaugeOpts("score", "Last persisted readiness score"))
	m.trainingLoad = auto.NewGauge(m.gaugeOpts("training_load_ratio", "Last normalized weekly training load"))
	m.lastRefreshUnix = auto.NewGauge(m.gaugeOpts("last_refresh_unix", "Unix time of the last persisted refresh"))

	m.samplesIngested = auto.NewCounterVec(m.counterOpts("ingested_total", "Records ingested by kind"), []string{"kind"})
	m.samplesDuplicate = auto.NewCounter(m.counterOpts("ingest_duplicate_total", "Duplicate records dropped at ingestion"))
	m.storedRecords = auto.NewGaugeVec(m.gaugeOpts("stored_records", "Records held by the sample store"), []string{"kind"})

	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency in milliseconds", nil))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Repository query latency in milliseconds", nil))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current ingestion queue backlog"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Ingestion queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue backlog over capacity"))
	m.queueEnqueue = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Messages enqueued"))
	m.queueDequeue = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Messages dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Enqueue failures"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Time from enqueue to processed in milliseconds", nil))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured ingestion workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently processing"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Workers currently idle"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", nil))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker processing errors"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Refresh cycle.

// RecordRefreshCycle counts a finished cycle by outcome.
func RecordRefreshCycle(outcome string) {
	globalManager.refreshCycles.WithLabelValues(outcome).Inc()
}

// RecordRefreshDuration records the wall time of one cycle.
func RecordRefreshDuration(ms float64) {
	globalManager.refreshDuration.Observe(ms)
}

// UpdateRefreshState sets the current cycle state.
func UpdateRefreshState(state int) {
	globalManager.refreshState.Set(float64(state))
}

// RecordFetchLatency records the latency of one metric fetch.
func RecordFetchLatency(fetch string, ms float64) {
	globalManager.fetchLatency.WithLabelValues(fetch).Observe(ms)
}

// RecordMetricUnavailable counts a fetch that failed, timed out or was empty.
func RecordMetricUnavailable(fetch string) {
	globalManager.metricUnavailable.WithLabelValues(fetch).Inc()
}

// RecordMetricMissing counts a required metric absent at the gate.
func RecordMetricMissing(metric string) {
	globalManager.metricMissing.WithLabelValues(metric).Inc()
}

// RecordSummarizeLatency records summarizer latency.
func RecordSummarizeLatency(ms float64) {
	globalManager.summarizeLatency.Observe(ms)
}

// RecordSummarizeError counts a summarizer failure.
func RecordSummarizeError() {
	globalManager.summarizeErrors.Inc()
}

// RecordPersistError counts a failed readiness write.
func RecordPersistError() {
	globalManager.persistErrors.Inc()
}

// UpdateReadinessScore sets the last persisted score.
func UpdateReadinessScore(score int) {
	globalManager.readinessScore.Set(float64(score))
	globalManager.lastRefreshUnix.SetToCurrentTime()
}

// UpdateTrainingLoad sets the last normalized load.
func UpdateTrainingLoad(load float64) {
	globalManager.trainingLoad.Set(load)
}

// Ingestion.

// RecordIngested counts an accepted record by kind.
func RecordIngested(kind string) {
	globalManager.samplesIngested.WithLabelValues(kind).Inc()
}

// RecordIngestDuplicate counts a duplicate dropped at ingestion.
func RecordIngestDuplicate() {
	globalManager.samplesDuplicate.Inc()
}

// UpdateStoredRecords sets the number of stored records of a kind.
func UpdateStoredRecords(kind string, count int) {
	globalManager.storedRecords.WithLabelValues(kind).Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(ms float64) {
	globalManager.repositoryUpdateLatency.Observe(ms)
}

// RecordRepositoryQueryLatency records repository query latency.
func RecordRepositoryQueryLatency(ms float64) {
	globalManager.repositoryQueryLatency.Observe(ms)
}

// Queue.

// UpdateQueueSize sets the current queue backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets backlog over capacity.
func UpdateQueueUtilization(ratio float64) {
	globalManager.queueUtilization.Set(ratio)
}

// RecordQueueEnqueue counts an enqueued message.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue counts a dequeued message.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError counts a failed enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records time from enqueue to processed.
func RecordQueueProcessingLatency(ms float64) {
	globalManager.queueProcessingLatency.Observe(ms)
}

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-message processing latency.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

// RecordWorkerError counts a worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByEndpoint counts an error returned by an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records a GC pause.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// GetRegistry returns the registry the global collectors live on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
