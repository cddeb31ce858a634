package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/pkg/usercontext"
)

func testApp(ctx usercontext.UserContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", ctx)
		return c.Next()
	})
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/user", RequireAuth, ok)
	app.Get("/admin", RequireAdmin, ok)
	return app
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name string
		ctx  usercontext.UserContext
		want int
	}{
		{"anonymous", usercontext.UserContext{}, fiber.StatusUnauthorized},
		{"logged in", usercontext.UserContext{UserID: 7, IsLoggedIn: true}, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := testApp(tt.ctx).Test(httptest.NewRequest(fiber.MethodGet, "/user", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		ctx  usercontext.UserContext
		want int
	}{
		{"anonymous", usercontext.UserContext{}, fiber.StatusUnauthorized},
		{"regular user", usercontext.UserContext{UserID: 7, IsLoggedIn: true}, fiber.StatusForbidden},
		{"admin", usercontext.UserContext{UserID: 1, IsLoggedIn: true, IsAdmin: true}, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := testApp(tt.ctx).Test(httptest.NewRequest(fiber.MethodGet, "/admin", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
