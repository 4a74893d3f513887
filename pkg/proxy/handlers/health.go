package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"kiroproxy/gateway/pkg/credential"
)

// HealthHandler handles health check requests for liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadyHandler handles readiness check requests: the gateway is ready
// once its credential pool has at least one dispatchable credential.
type ReadyHandler struct {
	Pool *credential.Pool
}

// NewReadyHandler creates a new readiness check handler.
func NewReadyHandler(pool *credential.Pool) *ReadyHandler {
	return &ReadyHandler{Pool: pool}
}

// ServeHTTP implements http.Handler for readiness checks.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	healthy := 0
	for _, c := range h.Pool.All() {
		if c.IsAvailable(now) {
			healthy++
		}
	}

	isReady := healthy > 0
	status := "ready"
	statusCode := http.StatusOK
	if !isReady {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status": status,
		"credentials": map[string]interface{}{
			"available": healthy,
			"total":     len(h.Pool.All()),
		},
		"timestamp": now.Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// CredentialHealthHandler reports per-credential availability, the
// gateway's replacement for the teacher's per-provider health detail.
type CredentialHealthHandler struct {
	Pool *credential.Pool
}

// NewCredentialHealthHandler creates a new credential health handler.
func NewCredentialHealthHandler(pool *credential.Pool) *CredentialHealthHandler {
	return &CredentialHealthHandler{Pool: pool}
}

// ServeHTTP implements http.Handler for detailed credential health.
func (h *CredentialHealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	out := make(map[string]interface{})
	for _, c := range h.Pool.All() {
		snap := c.Snapshot()
		out[snap.ID] = map[string]interface{}{
			"available":     c.IsAvailable(now),
			"request_count": c.RequestCount(),
			"last_used_at":  c.LastUsedAt().Unix(),
		}
	}

	response := map[string]interface{}{
		"credentials": out,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
