package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/naa-portal-api/internal/utils"
)

// Auth levels understood by WithAuth.
const (
	AuthAny    = "any"
	AuthMember = "member"
	AuthStaff  = "staff"
	AuthAdmin  = "admin"
)

// AuthOptions configures the WithAuth helper. Level any with AllowAnonymous lets
// unauthenticated requests through; every other combination requires a member id.
type AuthOptions struct {
	Level          string
	AllowAnonymous bool
}

// WithAuth wraps a single handler with authentication and role guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == "" {
		level = AuthAny
	}
	anonymous := opts.AllowAnonymous && level == AuthAny

	return func(c *fiber.Ctx) error {
		if c.Locals(LocalMemberID) == nil {
			if anonymous {
				return handler(c)
			}
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		role := normalizeRoleValue(c.Locals(LocalRole))
		switch level {
		case AuthAny:
		case AuthMember:
			if role != RoleMember && !IsStaff(role) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		case AuthStaff:
			if !IsStaff(role) {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		case AuthAdmin:
			if role != RoleAdmin {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		default:
			if role != level {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
			}
		}

		return handler(c)
	}
}
