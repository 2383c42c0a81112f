package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pdm_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	readingsScored  *prometheus.CounterVec
	scoringLatency  *prometheus.HistogramVec
	readingsDropped *prometheus.CounterVec

	machinesActive prometheus.Gauge

	rulRuns    *prometheus.CounterVec
	rulLatency *prometheus.HistogramVec

	tasksCreated *prometheus.CounterVec

	alertEvents *prometheus.CounterVec

	streamClients prometheus.Gauge
)

// Init registers pipeline metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		readingsScored = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_scored_total",
				Help: "Total scored readings by status and scorer path",
			},
			[]string{"status", "path"},
		)
		scoringLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scoring_latency_seconds",
				Help:    "Per-reading scoring latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		)
		readingsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_dropped_total",
				Help: "Total dropped readings by reason",
			},
			[]string{"reason"},
		)

		machinesActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "machines_active",
				Help: "Machines with live calibration state",
			},
		)

		rulRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rul_runs_total",
				Help: "Total RUL recomputations by result",
			},
			[]string{"result"},
		)
		rulLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rul_latency_seconds",
				Help:    "RUL recomputation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		tasksCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tasks_created_total",
				Help: "Total maintenance tasks created by source and quadrant",
			},
			[]string{"source", "quadrant"},
		)

		alertEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert events by type",
			},
			[]string{"event"},
		)

		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alert_stream_clients",
				Help: "Connected SSE alert stream clients",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			readingsScored,
			scoringLatency,
			readingsDropped,
			machinesActive,
			rulRuns,
			rulLatency,
			tasksCreated,
			alertEvents,
			streamClients,
		)
	})
}

// ObserveIngest records one ingest request.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveScored records one scored reading.
func ObserveScored(status, path string, duration time.Duration) {
	if readingsScored != nil {
		readingsScored.WithLabelValues(status, path).Inc()
	}
	if scoringLatency != nil {
		scoringLatency.WithLabelValues(path).Observe(duration.Seconds())
	}
}

// IncDropped increments the dropped-reading counter.
func IncDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if readingsDropped != nil {
		readingsDropped.WithLabelValues(reason).Inc()
	}
}

// SetMachinesActive sets the live machine gauge.
func SetMachinesActive(count int) {
	if machinesActive != nil {
		machinesActive.Set(float64(count))
	}
}

// ObserveRULRun records one RUL recomputation.
func ObserveRULRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if rulRuns != nil {
		rulRuns.WithLabelValues(result).Inc()
	}
	if rulLatency != nil {
		rulLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncTaskCreated increments the task creation counter.
func IncTaskCreated(source, quadrant string) {
	if tasksCreated != nil {
		tasksCreated.WithLabelValues(source, quadrant).Inc()
	}
}

// IncAlertEvent increments alert event counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEvents != nil {
		alertEvents.WithLabelValues(event).Inc()
	}
}

// AddStreamClient adjusts the SSE client gauge.
func AddStreamClient(delta int) {
	if streamClients != nil {
		streamClients.Add(float64(delta))
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
