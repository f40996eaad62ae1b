package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.refreshCycles.WithLabelValues("persisted").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_sub_refresh_cycles_total"], ShouldBeTrue)
			})
		})

		Convey("When creating two managers on the same registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestRefreshRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When a cycle persists", func() {
			before := testutil.ToFloat64(globalManager.refreshCycles.WithLabelValues("persisted"))
			RecordRefreshCycle("persisted")
			UpdateReadinessScore(83)
			UpdateTrainingLoad(0.25)

			Convey("Then the counters and gauges move", func() {
				So(testutil.ToFloat64(globalManager.refreshCycles.WithLabelValues("persisted")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.readinessScore), ShouldEqual, 83.0)
				So(testutil.ToFloat64(globalManager.trainingLoad), ShouldEqual, 0.25)
				So(testutil.ToFloat64(globalManager.lastRefreshUnix), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When metrics go missing", func() {
			before := testutil.ToFloat64(globalManager.metricMissing.WithLabelValues("hrv"))
			RecordMetricMissing("hrv")
			RecordMetricUnavailable("hrv")

			Convey("Then they are counted per metric", func() {
				So(testutil.ToFloat64(globalManager.metricMissing.WithLabelValues("hrv")), ShouldEqual, before+1)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordRefreshDuration(12)
					UpdateRefreshState(2)
					RecordFetchLatency("sleep_intervals", 3)
					RecordSummarizeLatency(400)
					RecordSummarizeError()
					RecordPersistError()
					RecordIngested("sample")
					RecordIngestDuplicate()
					UpdateStoredRecords("sample", 10)
					RecordRepositoryUpdateLatency(1)
					RecordRepositoryQueryLatency(1)
					UpdateQueueSize(1)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(2)
					UpdateWorkerCount(4)
					UpdateWorkerActiveCount(1)
					UpdateWorkerIdleCount(3)
					RecordWorkerProcessingLatency(1)
					RecordWorkerError()
					RecordHTTPRequest("/healthz", "GET", "200")
					RecordHTTPRequestDuration("/healthz", "GET", "200", 1)
					RecordErrorByEndpoint("/samples", "POST", "bad_request")
					RecordErrorByComponent("refresh", "persist")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.5)
				}, ShouldNotPanic)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it is the custom one", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
