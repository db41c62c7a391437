package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	principals map[string]model.Principal
	err        error
}

func (s stubResolver) Resolve(_ context.Context, token string) (model.Principal, error) {
	if s.err != nil {
		return model.Principal{}, s.err
	}
	p, ok := s.principals[token]
	if !ok {
		return model.Principal{}, service.ErrUnauthenticated
	}
	return p, nil
}

func newApp(resolver PrincipalResolver) *fiber.App {
	app := fiber.New()
	perms := service.DefaultPermissionTable()
	app.Get("/me", RequireAuth(resolver), func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(p.Identity)
	})
	app.Get("/audit", RequireAuth(resolver), RequirePrivilege(perms, model.ActionViewAllTransactions), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRequireAuth(t *testing.T) {
	app := newApp(stubResolver{principals: map[string]model.Principal{
		"farm": {Identity: "farm@example.com", Role: model.RoleProducer},
	}})

	assert.Equal(t, http.StatusOK, get(t, app, "/me", "Bearer farm").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/me", "bearer farm").StatusCode)

	resp := get(t, app, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/me", "Token farm").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/me", "Bearer nope").StatusCode)
}

func TestRequireAuthStorageFailure(t *testing.T) {
	app := newApp(stubResolver{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, app, "/me", "Bearer farm").StatusCode)
}

func TestRequirePrivilege(t *testing.T) {
	app := newApp(stubResolver{principals: map[string]model.Principal{
		"farm": {Identity: "farm@example.com", Role: model.RoleProducer},
		"fda":  {Identity: "fda@example.gov", Role: model.RoleRegulator},
	}})

	assert.Equal(t, http.StatusForbidden, get(t, app, "/audit", "Bearer farm").StatusCode)
	assert.Equal(t, http.StatusNoContent, get(t, app, "/audit", "Bearer fda").StatusCode)
}
