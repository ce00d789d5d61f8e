package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Collective metrics
	CollectiveCalls    *prometheus.CounterVec
	CollectiveDuration *prometheus.HistogramVec
	CollectiveBytes    *prometheus.CounterVec

	// Pipeline metrics
	KernelDuration   *prometheus.HistogramVec
	RunsTotal        *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	GroupSize        prometheus.Gauge

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	gatherer prometheus.Gatherer

	// Snapshot for the JSON status endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for the status endpoint
type MetricsSnapshot struct {
	Runs            int64
	FailedRuns      int64
	CollectiveCalls int64
	BytesMoved      int64
}

var durationBuckets = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// NewMetrics creates a metrics collector registered on reg. Pass
// prometheus.NewRegistry() for isolated collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),
		gatherer:  reg,

		// Collective metrics
		CollectiveCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_collective_calls_total",
				Help: "Total number of collective operations",
			},
			[]string{"op", "status"},
		),
		CollectiveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixmesh_collective_duration_seconds",
				Help:    "Time spent inside a collective, including waiting for other ranks",
				Buckets: durationBuckets,
			},
			[]string{"op"},
		),
		CollectiveBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_collective_bytes_total",
				Help: "Payload bytes moved by collectives",
			},
			[]string{"op", "direction"},
		),

		// Pipeline metrics
		KernelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixmesh_kernel_duration_seconds",
				Help:    "Local kernel compute time",
				Buckets: durationBuckets,
			},
			[]string{"kernel"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_runs_total",
				Help: "Total number of pipeline runs by terminal state",
			},
			[]string{"kernel", "state"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_state_transitions_total",
				Help: "Pipeline state transitions",
			},
			[]string{"state"},
		),
		GroupSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pixmesh_group_size",
				Help: "Number of ranks in the group",
			},
		),

		// gRPC metrics
		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_grpc_calls_total",
				Help: "Total number of gRPC calls",
			},
			[]string{"method", "code"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixmesh_grpc_duration_seconds",
				Help:    "gRPC call duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixmesh_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixmesh_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: durationBuckets,
			},
			[]string{"method", "path"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pixmesh_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Gatherer returns the registry the metrics are exposed from
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// RecordCollective records one collective operation
func (m *Metrics) RecordCollective(op, status string, duration time.Duration, sent, received int) {
	m.CollectiveCalls.WithLabelValues(op, status).Inc()
	m.CollectiveDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.CollectiveBytes.WithLabelValues(op, "sent").Add(float64(sent))
	m.CollectiveBytes.WithLabelValues(op, "received").Add(float64(received))

	m.mu.Lock()
	m.snapshot.CollectiveCalls++
	m.snapshot.BytesMoved += int64(sent + received)
	m.mu.Unlock()
}

// RecordKernel records local kernel compute time
func (m *Metrics) RecordKernel(kernel string, duration time.Duration) {
	m.KernelDuration.WithLabelValues(kernel).Observe(duration.Seconds())
}

// RecordRun records a run reaching a terminal state
func (m *Metrics) RecordRun(kernel, state string, failed bool) {
	m.RunsTotal.WithLabelValues(kernel, state).Inc()

	m.mu.Lock()
	m.snapshot.Runs++
	if failed {
		m.snapshot.FailedRuns++
	}
	m.mu.Unlock()
}

// RecordTransition records a pipeline state transition
func (m *Metrics) RecordTransition(state string) {
	m.StateTransitions.WithLabelValues(state).Inc()
}

// SetGroupSize sets the group size gauge
func (m *Metrics) SetGroupSize(n int) {
	m.GroupSize.Set(float64(n))
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, code string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns the current snapshot values
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
