package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dalscooter/concern-service/internal/api/http/handlers"
	"github.com/dalscooter/concern-service/internal/auth"
	"github.com/dalscooter/concern-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Concerns       *handlers.ConcernsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	// Preflights are answered by the cors middleware; bare OPTIONS get an empty 204.
	// A method check keeps unknown paths 404 for every other method.
	app.Use(func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	})

	app.Post("/concern/submit", cfg.Concerns.Submit)
	app.Post("/concerns", cfg.Concerns.Submit)

	authn := cfg.AuthMiddleware.Handle
	app.Get("/concerns/:id", authn, auth.RequireRole(domain.RoleOperator, domain.RoleService), cfg.Concerns.Get)

	if cfg.Notifications != nil {
		app.Post("/send-email", authn, auth.RequireRole(domain.RoleService), cfg.Notifications.Send)
		app.Post("/notifications", authn, auth.RequireRole(domain.RoleService), cfg.Notifications.Send)
	}
}
