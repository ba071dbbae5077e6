package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const healthTimeout = 2 * time.Second

type Health struct {
	serviceName string
	db          HealthChecker
	log         logger.Logger
}

func NewHealth(serviceName string, db HealthChecker, log logger.Logger) *Health {
	return &Health{
		serviceName: serviceName,
		db:          db,
		log:         log,
	}
}

// HealthCheck reports the service and its database state
//
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      503 {object} map[string]interface{}
// @Router       /health [get]
func (a *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "health_check")

	status, code, database := "available", http.StatusOK, "connected"
	if a.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := a.db.Ping(pingCtx); err != nil {
			a.log.Warn(ctx, "database ping failed", "error", err.Error())
			status, code, database = "unavailable", http.StatusServiceUnavailable, "disconnected"
		}
	}

	response := envelope{
		"status":   status,
		"database": database,
		"system_info": map[string]string{
			"service-name": a.serviceName,
		},
	}

	if err := writeJSON(w, code, response, nil); err != nil {
		a.log.Error(ctx, "healthcheck", err)
	}
}
