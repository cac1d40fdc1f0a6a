// Package http provides the HTTP server implementation for the coordinator.
package http

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentfleet/agentfleet/internal/config"
	"github.com/agentfleet/agentfleet/internal/service"
	"github.com/agentfleet/agentfleet/internal/transport/http/runnerapi"
	v1 "github.com/agentfleet/agentfleet/internal/transport/http/v1"
)

// NewServer creates and configures the coordinator HTTP server. Client and
// dashboard routes live under /v1, runner-facing routes under /runner with
// key auth when a runner token is configured.
func NewServer(svc *service.Service, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc)
	runnerHandler := runnerapi.NewHandler(svc)

	// Register routes
	v1Handler.RegisterRoutes(e)

	runnerGroup := e.Group("/runner")
	if cfg.RunnerToken != "" {
		token := cfg.RunnerToken
		runnerGroup.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		}))
	}
	runnerHandler.RegisterRoutes(runnerGroup)

	return e
}
