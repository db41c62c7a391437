package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/service"
	"supplychain-ledger/internal/testdb"
	"supplychain-ledger/pkg/jwt"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db := testdb.New(t)
	log := logger.Nop()

	productRepo := repository.NewProductRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	userRepo := repository.NewUserRepo(db)
	roleRepo := repository.NewRoleRepo(db)
	outboxRepo := repository.NewOutboxRepo(db)
	privilegeRepo := repository.NewPrivilegeRepo(db)

	ctx := t.Context()
	require.NoError(t, privilegeRepo.SeedDefaults(ctx))
	require.NoError(t, roleRepo.SeedDefaults(ctx))
	perms, err := service.LoadPermissionTable(ctx, roleRepo)
	require.NoError(t, err)

	tokens := jwt.NewManager("handler-test", 30*time.Minute, "ledger-test")
	authService := service.NewAuthService(userRepo, tokens, log)
	ledger := service.NewLedgerService(service.LedgerDeps{
		DB:           db,
		Products:     productRepo,
		Transactions: txRepo,
		Outbox:       outboxRepo,
		Permissions:  perms,
		Log:          log,
		Config:       service.LedgerConfig{MaxRetries: 3},
	})
	trace := service.NewTraceService(productRepo, txRepo, log)
	dashboard := service.NewDashboardService(productRepo, txRepo, userRepo, outboxRepo, perms)

	app := fiber.New()
	SetupRoutes(app, Handlers{
		Auth:        NewAuthHandler(authService, log),
		Products:    NewProductHandler(ledger, trace, log),
		Audit:       NewAuditHandler(trace, dashboard, log),
		Roles:       NewRoleHandler(roleRepo, log),
		Resolver:    authService,
		Permissions: perms,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorKind(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	kind, _ := e["kind"].(string)
	return kind
}

func signup(t *testing.T, app *fiber.App, email string, role model.Role) string {
	t.Helper()
	status, _ := do(t, app, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"name": email, "email": email, "password": "correct-horse", "role": string(role),
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, app, http.MethodPost, "/api/v1/auth/token", "", fiber.Map{
		"email": email, "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	farm := signup(t, app, "farm@example.com", model.RoleProducer)
	truck := signup(t, app, "truck@example.com", model.RoleDistributor)

	status, body := do(t, app, http.MethodPost, "/api/v1/products", farm, fiber.Map{
		"productId": "P-1", "name": "Arabica beans", "location": "Farm", "price": "12.50",
	})
	require.Equal(t, http.StatusCreated, status, body)
	product := body["product"].(map[string]interface{})
	assert.Equal(t, "farm@example.com", product["current_owner"])
	assert.Equal(t, model.StatusProduced, product["status"])

	status, body = do(t, app, http.MethodPut, "/api/v1/products/P-1", farm, fiber.Map{
		"new_owner": "truck@example.com", "note": "handover",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "truck@example.com", body["product"].(map[string]interface{})["current_owner"])

	status, body = do(t, app, http.MethodPut, "/api/v1/products/P-1", truck, fiber.Map{
		"status": "InTransit", "location": "Port",
	})
	require.Equal(t, http.StatusOK, status, body)

	// public read, no token
	status, body = do(t, app, http.MethodGet, "/api/v1/products/P-1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["history"], 3)
	assert.Equal(t, "Port", body["product"].(map[string]interface{})["location"])

	status, body = do(t, app, http.MethodGet, "/api/v1/transactions/P-1", truck, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transactions"], 3)

	status, body = do(t, app, http.MethodGet, "/api/v1/trace/P-1", truck, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "farm@example.com", body["origin"])
	assert.Equal(t, "Port", body["current_location"])

	status, body = do(t, app, http.MethodGet, "/api/v1/products", truck, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["products"], 1)

	status, body = do(t, app, http.MethodGet, "/api/v1/products", farm, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["products"])
}

func TestErrorKindsMapToStatus(t *testing.T) {
	app := newTestApp(t)
	farm := signup(t, app, "farm@example.com", model.RoleProducer)
	shopper := signup(t, app, "alice@example.com", model.RoleConsumer)

	status, body := do(t, app, http.MethodPost, "/api/v1/products", "", fiber.Map{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", errorKind(body))

	status, body = do(t, app, http.MethodPost, "/api/v1/products", "not-a-token", fiber.Map{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", errorKind(body))

	status, body = do(t, app, http.MethodPost, "/api/v1/products", shopper, fiber.Map{"productId": "P-1", "name": "x"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", errorKind(body))

	status, body = do(t, app, http.MethodPost, "/api/v1/products", farm, fiber.Map{"productId": "P-1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errorKind(body))

	status, _ = do(t, app, http.MethodPost, "/api/v1/products", farm, fiber.Map{"productId": "P-1", "name": "Beans"})
	require.Equal(t, http.StatusCreated, status)
	status, body = do(t, app, http.MethodPost, "/api/v1/products", farm, fiber.Map{"productId": "P-1", "name": "Beans"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_id", errorKind(body))

	status, body = do(t, app, http.MethodPut, "/api/v1/products/missing", farm, fiber.Map{"status": "Delivered"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(body))

	status, body = do(t, app, http.MethodGet, "/api/v1/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(body))

	status, body = do(t, app, http.MethodPut, "/api/v1/products/P-1", farm, fiber.Map{"status": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errorKind(body))
}

func TestAuditRoutesRequireRegulator(t *testing.T) {
	app := newTestApp(t)
	farm := signup(t, app, "farm@example.com", model.RoleProducer)
	fda := signup(t, app, "fda@example.gov", model.RoleRegulator)

	status, created := do(t, app, http.MethodPost, "/api/v1/products", farm, fiber.Map{"productId": "P-1", "name": "Beans"})
	require.Equal(t, http.StatusCreated, status)
	txID, _ := created["transaction_id"].(string)
	require.NotEmpty(t, txID)

	status, body := do(t, app, http.MethodGet, "/api/v1/audit/P-1/verify", farm, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", errorKind(body))

	status, body = do(t, app, http.MethodGet, "/api/v1/audit/P-1/verify", fda, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["chain_valid"])
	assert.Equal(t, true, body["state_matches"])

	status, body = do(t, app, http.MethodGet, "/api/v1/audit/stats", fda, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total_products"])

	status, body = do(t, app, http.MethodGet, "/api/v1/audit/transactions/"+txID, fda, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "P-1", body["productId"])
	assert.EqualValues(t, 1, body["sequence"])

	status, _ = do(t, app, http.MethodGet, "/api/v1/audit/transactions/"+txID, farm, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, http.MethodGet, "/api/v1/audit/transactions/not-a-uuid", fda, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errorKind(body))

	status, body = do(t, app, http.MethodGet, "/api/v1/audit/transactions/"+uuid.NewString(), fda, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorKind(body))

	status, body = do(t, app, http.MethodPost, "/api/v1/audit/mirror/requeue", fda, fiber.Map{"limit": 10})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["requeued"])

	status, body = do(t, app, http.MethodPost, "/api/v1/audit/mirror/requeue", fda, fiber.Map{"limit": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodPost, "/api/v1/audit/mirror/requeue", farm, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = do(t, app, http.MethodGet, "/api/v1/roles", fda, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["roles"], len(model.AllRoles))
}

func TestTokenAcceptsPasswordForm(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "farm@example.com", model.RoleProducer)

	form := url.Values{"username": {"farm@example.com"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	form.Set("password", "wrong-password")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(service.KindStorageUnavailable))
	assert.Equal(t, http.StatusConflict, statusFor(service.KindConflict))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(service.Kind("other")))
}
