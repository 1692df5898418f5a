package handlers

import (
	"net/http"

	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/instances"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil && sqlDB.Ping() == nil {
			dbStatus = "connected"
		}
	}

	backend := "none"
	if ctrl := instances.Get(); ctrl != nil {
		backend = ctrl.BackendName()
	}

	live := "disabled"
	if LiveEnabled {
		live = "enabled"
	}

	terminals := 0
	if Terminals != nil {
		terminals = Terminals.ActiveCount()
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               status,
		"database":             dbStatus,
		"orchestrator_backend": backend,
		"live_mode":            live,
		"active_terminals":     terminals,
	})
}
