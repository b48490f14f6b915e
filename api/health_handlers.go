package api

import (
	"context"
	"net/http"
	"time"

	"chatapp/core"
	"chatapp/storage"
)

// Health statuses reported by GET /health
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// DatabaseStatus reports the state of the database connection
type DatabaseStatus interface {
	State() storage.State
	Driver() string
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Driver    string    `json:"driver"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the body of GET /health/ready
type ReadinessResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// healthCheck reports process liveness and the database state without
// touching the database
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	state := a.db.State()
	status := HealthStatusOK
	if state != storage.StateConnected {
		status = HealthStatusDegraded
	}

	respondJSON(w, HealthResponse{
		Status:    status,
		Database:  state.String(),
		Driver:    a.db.Driver(),
		Uptime:    time.Since(a.startTime).Seconds(),
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// liveness always succeeds while the process serves requests
func (a *API) liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "alive"}, http.StatusOK)
}

// readiness succeeds only when the database is connected and answers a ping
func (a *API) readiness(w http.ResponseWriter, r *http.Request) {
	state := a.db.State()
	if state != storage.StateConnected {
		respondJSON(w, ReadinessResponse{Status: "not_ready", Database: state.String()}, http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), core.DBHealthTimeout)
	defer cancel()
	if err := a.db.Ping(ctx); err != nil {
		a.logger.Warnw("Readiness ping failed", "error", err)
		respondJSON(w, ReadinessResponse{
			Status:   "not_ready",
			Database: state.String(),
			Error:    sanitizeErrorMessage(err.Error()),
		}, http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, ReadinessResponse{Status: "ready", Database: state.String()}, http.StatusOK)
}
