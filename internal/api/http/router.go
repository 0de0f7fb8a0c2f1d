package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/spec-kit/token-auth/internal/api/http/handlers"
	"github.com/spec-kit/token-auth/internal/auth"
	"github.com/spec-kit/token-auth/internal/domain"
	"github.com/spec-kit/token-auth/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Sessions       *handlers.SessionHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	// AllowedOrigins is a comma separated CORS origin list, "*" allows any origin.
	AllowedOrigins string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api", newCORS(cfg.AllowedOrigins))

	api.Post("/login", cfg.Sessions.Login)

	api.Get("/private", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Sessions.Private)

	authGroup := api.Group("/auth", cfg.AuthMiddleware.Handle)
	authGroup.Get("/me", cfg.Sessions.Me)
	authGroup.Get("/admin/ping", auth.RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

// newCORS answers browser preflights for the API group. Requested headers are
// echoed back so clients may send Authorization alongside their own headers.
func newCORS(allowedOrigins string) fiber.Handler {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: observability.RequestIDHeader,
		MaxAge:        600,
	})
}
