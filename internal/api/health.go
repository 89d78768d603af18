package api

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// AuthStatusSource reports whether a backend login is held.
type AuthStatusSource interface {
	IsAuthenticated() bool
}

type HealthHandler struct {
	auth      AuthStatusSource
	db        HealthChecker
	mqtt      ConnectionStatus
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health handler. db and mqtt may be nil when
// those integrations are not configured.
func NewHealthHandler(auth AuthStatusSource, db HealthChecker, mqtt ConnectionStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		auth:      auth,
		db:        db,
		mqtt:      mqtt,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	// The journal is optional, so a broken database degrades rather than fails
	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.auth != nil && h.auth.IsAuthenticated() {
		checks["backend_login"] = "authenticated"
	} else {
		checks["backend_login"] = "logged_out"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
