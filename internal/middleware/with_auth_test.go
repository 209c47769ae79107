package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/naa-portal-api/internal/middleware"
)

func authApp(id interface{}, role string, opts middleware.AuthOptions) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if id != nil {
			c.Locals(middleware.LocalMemberID, id)
			c.Locals(middleware.LocalRole, role)
		}
		return c.Next()
	})
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, opts))
	return app
}

func TestWithAuthMemberLevel(t *testing.T) {
	resp := perform(t, authApp(uint(10), "Member", middleware.AuthOptions{Level: middleware.AuthMember}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = perform(t, authApp(uint(10), "reviewer", middleware.AuthOptions{Level: middleware.AuthMember}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = perform(t, authApp(uint(10), "guest", middleware.AuthOptions{Level: middleware.AuthMember}))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWithAuthStaffAndAdminLevels(t *testing.T) {
	resp := perform(t, authApp(uint(1), "reviewer", middleware.AuthOptions{Level: middleware.AuthStaff}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = perform(t, authApp(uint(1), "member", middleware.AuthOptions{Level: middleware.AuthStaff}))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = perform(t, authApp(uint(1), "reviewer", middleware.AuthOptions{Level: middleware.AuthAdmin}))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = perform(t, authApp(uint(1), "admin", middleware.AuthOptions{Level: middleware.AuthAdmin}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestWithAuthRequiresUserByDefault(t *testing.T) {
	resp := perform(t, authApp(nil, "", middleware.AuthOptions{}))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = perform(t, authApp(nil, "", middleware.AuthOptions{Level: middleware.AuthStaff, AllowAnonymous: true}))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAuthAnyAllowsAnonymousWhenOptedIn(t *testing.T) {
	resp := perform(t, authApp(nil, "", middleware.AuthOptions{Level: middleware.AuthAny, AllowAnonymous: true}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	return resp
}
