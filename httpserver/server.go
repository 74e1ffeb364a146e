// Package httpserver provides the health/readiness endpoint every worker
// process exposes, adapted from the teacher's http/server.go: the full
// CORS/API-key/rate-limit middleware stack it builds for a public REST
// API has no home here — the orchestrator exposes no REST surface (see
// SPEC_FULL.md §4.7) — so only the logger/recover/request-ID middleware
// and the health handler survive, trimmed to what an internal liveness probe
// needs.
package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"idp.evalgo.org/config"
)

// HealthResponse is the liveness probe's JSON body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service,omitempty"`
	Version string                 `json:"version,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// New builds an Echo instance with request logging, panic recovery and
// request-ID middleware; the first two are the pair the teacher installs
// on every service before any route-specific middleware.
func New(cfg config.ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	return e
}

// HealthHandler reports the worker process as healthy and attaches
// caller-supplied details — queue depth, active consumer tags, whatever
// the calling stage worker wants surfaced to an operator's probe.
func HealthHandler(serviceName, version string, detailsFunc func() map[string]interface{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		details := map[string]interface{}{}
		if detailsFunc != nil {
			details = detailsFunc()
		}
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
			Details: details,
		})
	}
}

// Start runs e until ctx is cancelled, then shuts it down within cfg's
// configured timeout.
func Start(ctx context.Context, e *echo.Echo, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(srv); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
