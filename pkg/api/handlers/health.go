package handlers

import (
	"context"
	"net/http"
	"time"
)

// Checker reports whether a backend is usable.
type Checker interface {
	Healthcheck(ctx context.Context) error
}

// Response is the body of the health endpoints.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and never take the data locks:
//   - Liveness probe: is the server process running?
//   - Readiness probe: is the storage backend reachable?
type HealthHandler struct {
	service string
	checker Checker
}

// NewHealthHandler creates a new health handler. checker may be nil, in
// which case readiness fails.
func NewHealthHandler(service string, checker Checker) *HealthHandler {
	return &HealthHandler{service: service, checker: checker}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, healthyResponse(map[string]string{"service": h.service}))
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("storage not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.checker.Healthcheck(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}
	WriteJSONOK(w, healthyResponse(map[string]string{
		"service": h.service,
		"latency": time.Since(start).String(),
	}))
}
