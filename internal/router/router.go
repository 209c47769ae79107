package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/handler"
	"github.com/noah-isme/naa-portal-api/internal/middleware"
	"github.com/noah-isme/naa-portal-api/internal/observability"
)

// Dependencies groups router dependencies for registration. Nil handlers leave their
// routes unregistered.
type Dependencies struct {
	MemberHandler        *handler.MemberHandler
	ArtifactHandler      *handler.ArtifactHandler
	CPDHandler           *handler.CPDHandler
	AdminCPDHandler      *handler.AdminCPDHandler
	AdminMemberHandler   *handler.AdminMemberHandler
	AdminPeriodHandler   *handler.AdminPeriodHandler
	AdminActivityHandler *handler.AdminActivityHandler
	OfflineHandler       *handler.OfflineHandler
	HealthProbes         map[string]handler.HealthProbe
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	if deps.MemberHandler != nil {
		deps.MemberHandler.RegisterPublic(api.Group("/members"))
	}
	if deps.OfflineHandler != nil {
		deps.OfflineHandler.Register(app.Group("/offline"))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	member := app.Group("/api/v2", jwtMiddleware, middleware.RequireRole(middleware.RoleMember, middleware.RoleReviewer, middleware.RoleAdmin))
	if deps.MemberHandler != nil {
		deps.MemberHandler.Register(member)
	}
	if deps.ArtifactHandler != nil {
		deps.ArtifactHandler.Register(member.Group("/artifacts"))
	}
	if deps.CPDHandler != nil {
		deps.CPDHandler.Register(member.Group("/cpd"))
	}

	admin := app.Group("/api/admin", jwtMiddleware, middleware.RequireRole(middleware.StaffRoles...))
	if deps.AdminCPDHandler != nil {
		deps.AdminCPDHandler.Register(admin.Group("/cpd/records"))
	}
	if deps.AdminMemberHandler != nil {
		deps.AdminMemberHandler.Register(admin.Group("/members"))
	}
	if deps.AdminPeriodHandler != nil {
		deps.AdminPeriodHandler.Register(admin.Group("/periods"))
	}
	if deps.ArtifactHandler != nil {
		deps.ArtifactHandler.RegisterAdmin(admin.Group("/artifacts"))
	}
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(admin.Group("/activity"))
	}
}
