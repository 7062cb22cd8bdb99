// Package metrics defines the observability hooks of eec and the shared
// Prometheus registry.
//
// Components accept a Recorder and treat nil as "metrics disabled":
//
//	metrics.InitRegistry()
//	rec := prometheus.NewRecorder()
//	g := guard.New(files, guard.WithRecorder(rec))
//
//	// Without metrics (zero overhead)
//	g := guard.New(files)
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Guard outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeLockFailed  = "lock_failed"
	OutcomeLoadFailed  = "load_failed"
	OutcomeHandlerErr  = "handler_error"
	OutcomePanic       = "panic"
	OutcomePersistFail = "persist_failed"
)

// Recorder collects request guard, snapshot and HTTP metrics.
type Recorder interface {
	// ObserveLockWait records the time spent waiting for one file lock.
	ObserveLockWait(path string, waited time.Duration)

	// ObserveGuard records a completed guarded request with its outcome
	// (one of the Outcome constants).
	ObserveGuard(outcome string, d time.Duration)

	// ObserveLoad and ObserveWrite record snapshot I/O per repository.
	ObserveLoad(repository string, d time.Duration, err error)
	ObserveWrite(repository string, bytes int, d time.Duration, err error)

	// ObserveRequest records a completed HTTP request.
	ObserveRequest(service, method, route string, status int, d time.Duration)
}

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process registry with Go and process collectors.
// Calling it again returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry was called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ResetForTesting drops the registry.
func ResetForTesting() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}
