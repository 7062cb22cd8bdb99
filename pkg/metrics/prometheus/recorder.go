// Package prometheus implements metrics.Recorder on client_golang.
package prometheus

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eecworkbench/eec/pkg/metrics"
)

type recorder struct {
	lockWait        *prometheus.HistogramVec
	guardTotal      *prometheus.CounterVec
	guardDuration   *prometheus.HistogramVec
	snapshotLoads   *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
	snapshotBytes   *prometheus.HistogramVec
	snapshotLatency *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// lock waits and snapshot I/O range from microseconds (uncontended, small
// files) to seconds (a peer process holding the lock)
var latencyBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30,
}

// NewRecorder returns a Prometheus-backed Recorder, or nil if metrics are
// not enabled (InitRegistry not called).
func NewRecorder() metrics.Recorder {
	if !metrics.IsEnabled() {
		return nil
	}
	factory := promauto.With(metrics.GetRegistry())

	return &recorder{
		lockWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eec_lock_wait_seconds",
			Help:    "Time spent waiting for a snapshot file lock",
			Buckets: latencyBuckets,
		}, []string{"file"}),
		guardTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eec_guard_requests_total",
			Help: "Guarded requests by outcome",
		}, []string{"outcome"}),
		guardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eec_guard_duration_seconds",
			Help:    "Time from lock request to lock release",
			Buckets: latencyBuckets,
		}, []string{"outcome"}),
		snapshotLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eec_snapshot_loads_total",
			Help: "Snapshot reloads by repository and status",
		}, []string{"repository", "status"}),
		snapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eec_snapshot_writes_total",
			Help: "Snapshot writes by repository and status",
		}, []string{"repository", "status"}),
		snapshotBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eec_snapshot_bytes",
			Help:    "Size of written snapshots",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"repository"}),
		snapshotLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eec_snapshot_io_seconds",
			Help:    "Duration of snapshot loads and writes",
			Buckets: latencyBuckets,
		}, []string{"repository", "op"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eec_http_requests_total",
			Help: "HTTP requests by service, method, route and status",
		}, []string{"service", "method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eec_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: latencyBuckets,
		}, []string{"service", "method", "route"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (r *recorder) ObserveLockWait(path string, waited time.Duration) {
	r.lockWait.WithLabelValues(filepath.Base(path)).Observe(waited.Seconds())
}

func (r *recorder) ObserveGuard(outcome string, d time.Duration) {
	r.guardTotal.WithLabelValues(outcome).Inc()
	r.guardDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *recorder) ObserveLoad(repository string, d time.Duration, err error) {
	r.snapshotLoads.WithLabelValues(repository, status(err)).Inc()
	r.snapshotLatency.WithLabelValues(repository, "load").Observe(d.Seconds())
}

func (r *recorder) ObserveWrite(repository string, bytes int, d time.Duration, err error) {
	r.snapshotWrites.WithLabelValues(repository, status(err)).Inc()
	r.snapshotLatency.WithLabelValues(repository, "write").Observe(d.Seconds())
	if err == nil {
		r.snapshotBytes.WithLabelValues(repository).Observe(float64(bytes))
	}
}

func (r *recorder) ObserveRequest(service, method, route string, code int, d time.Duration) {
	r.requestsTotal.WithLabelValues(service, method, route, strconv.Itoa(code)).Inc()
	r.requestDuration.WithLabelValues(service, method, route).Observe(d.Seconds())
}
