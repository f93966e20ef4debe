package main

import (
	"context"
	"net/http"
	"time"
)

// healthCheckHandler godoc
//
//	@Summary		Health check
//	@Description	Reports service status and whether the database answers a ping.
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		503	{object}	error
//	@Security		BasicAuth
//	@Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	data := map[string]string{
		"status":  "ok",
		"env":     app.config.Env,
		"version": version,
	}

	if err := app.store.Ping(ctx); err != nil {
		app.logger.Errorw("health check: database ping failed", "error", err)
		data["status"] = "degraded"
		app.jsonResponse(w, http.StatusServiceUnavailable, data)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, data); err != nil {
		app.internalServerError(w, r, err)
	}
}
