// Package healthz serves the ECS's liveness and readiness probes,
// grounded on the teacher's periodic health checker but simplified to
// what the ECS actually needs to report: whether the process is up,
// and whether its DCS session is connected and ready to accept
// control operations.
package healthz

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReadinessCheck reports whether the ECS is ready to accept control
// operations, typically backed by the DCS client's session state.
type ReadinessCheck func() bool

// Checker serves /health/live and /health/ready, mirroring the
// teacher's LivenessHandler/ReadinessHandler shape.
type Checker struct {
	logger *zap.Logger

	mu        sync.RWMutex
	ready     ReadinessCheck
	lastCheck time.Time
}

// New returns a Checker. The process is always live once constructed;
// ready reports readiness on demand (may be nil, meaning always ready).
func New(ready ReadinessCheck, logger *zap.Logger) *Checker {
	return &Checker{ready: ready, logger: logger}
}

// LivenessHandler always reports live: if this handler runs, the
// process's HTTP server is responsive.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy": true,
	})
}

// ReadinessHandler reports whether the ECS's readiness check passes.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := c.isReady()

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready": ready,
	})
}

func (c *Checker) isReady() bool {
	c.mu.RLock()
	check := c.ready
	c.mu.RUnlock()
	if check == nil {
		return true
	}
	return check()
}

// RegisterRoutes attaches the health endpoints to mux.
func (c *Checker) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health/live", c.LivenessHandler)
	mux.HandleFunc("/health/ready", c.ReadinessHandler)
}
