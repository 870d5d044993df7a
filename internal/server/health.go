package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK       = "ok"
	healthStatusNotReady = "not ready"
	healthStatusPending  = "pending"
)

// HealthChecker tracks the outcome of the most recent credential check.
type HealthChecker struct {
	mu        sync.RWMutex
	checked   bool
	state     string
	lastErr   error
	lastCheck time.Time
	expiry    time.Time

	startTime time.Time
	now       func() time.Time
}

// NewHealthChecker creates a HealthChecker that is not ready until the
// first credential check is observed.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Observe records the outcome of a credential check.
func (h *HealthChecker) Observe(state string, expiry time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checked = true
	h.state = state
	h.expiry = expiry
	h.lastErr = err
	h.lastCheck = h.now()
}

// IsReady reports whether the last check produced a usable credential.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.checked && h.lastErr == nil && h.state == readyState
}

// readyState is the flow state in which a credential is usable.
const readyState = "valid"

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	State       string `json:"state,omitempty"`
	LastCheck   string `json:"last_check,omitempty"`
	TokenExpiry string `json:"token_expiry,omitempty"`
	Error       string `json:"error,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.mu.RLock()
		checked, state, lastErr := h.checked, h.state, h.lastErr
		h.mu.RUnlock()

		checks := make(map[string]string)
		switch {
		case !checked:
			checks["credential"] = healthStatusPending
		case lastErr != nil:
			checks["credential"] = lastErr.Error()
		default:
			checks["credential"] = state
		}

		if h.IsReady() {
			writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.mu.RLock()
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: h.now().Sub(h.startTime).Truncate(time.Second).String(),
			State:  h.state,
		}
		if h.checked {
			response.LastCheck = h.lastCheck.UTC().Format(time.RFC3339)
		}
		if !h.expiry.IsZero() {
			response.TokenExpiry = h.expiry.UTC().Format(time.RFC3339)
		}
		if h.lastErr != nil {
			response.Error = h.lastErr.Error()
		}
		h.mu.RUnlock()

		status := http.StatusOK
		if !h.IsReady() {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
