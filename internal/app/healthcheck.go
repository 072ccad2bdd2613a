package app

import (
	"context"
	"net/http"
	"time"
)

type systemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
	Store       string `json:"store"`
}

type healthcheckResponse struct {
	Status     string            `json:"status"`
	SystemInfo systemInfo        `json:"systemInfo"`
	Checks     map[string]string `json:"checks,omitempty"`
}

func (app *Application) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthcheckResponse{
		Status: "UP",
		SystemInfo: systemInfo{
			Version:     version,
			Environment: app.config.Env,
			Store:       app.config.Store,
		},
		Checks: map[string]string{},
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK

	if app.db != nil {
		resp.Checks["postgres"] = "UP"
		if err := app.db.Ping(ctx); err != nil {
			app.logger.Error("postgres health check failed", "error", err)
			resp.Checks["postgres"] = "DOWN"
			resp.Status = "DOWN"
			status = http.StatusServiceUnavailable
		}
	}

	if app.redis != nil {
		resp.Checks["redis"] = "UP"
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.logger.Warn("redis health check failed", "error", err)
			resp.Checks["redis"] = "DOWN"
		}
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
