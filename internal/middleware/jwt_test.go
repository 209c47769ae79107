package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Get("/", JWTProtected(testSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals(LocalMemberID), "role": c.Locals(LocalRole)})
	})
	return app
}

func callWithToken(t *testing.T, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := jwtApp().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestJWTProtectedDefaultsToMemberRole(t *testing.T) {
	token := signed(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()})
	resp := callWithToken(t, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		ID   uint   `json:"id"`
		Role string `json:"role"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	require.Equal(t, uint(42), body.ID)
	require.Equal(t, RoleMember, body.Role)
}

func TestJWTProtectedReadsRoleList(t *testing.T) {
	token := signed(t, jwt.MapClaims{"member_id": float64(7), "roles": []string{"Reviewer"}, "exp": time.Now().Add(time.Hour).Unix()})
	resp := callWithToken(t, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Role string `json:"role"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	require.Equal(t, RoleReviewer, body.Role)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, "").StatusCode)

	expired := signed(t, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(-time.Hour).Unix()})
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, expired).StatusCode)

	noExpiry := signed(t, jwt.MapClaims{"sub": "42"})
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, noExpiry).StatusCode)

	noSubject := signed(t, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, noSubject).StatusCode)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte("other"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, callWithToken(t, other).StatusCode)
}
