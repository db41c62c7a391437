package handler

import (
	"supplychain-ledger/internal/middleware"
	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles everything the /api/v1 routes need.
type Handlers struct {
	Auth        *AuthHandler
	Products    *ProductHandler
	Audit       *AuditHandler
	Roles       *RoleHandler
	Resolver    middleware.PrincipalResolver
	Permissions *service.PermissionTable
}

// SetupRoutes mounts the ledger API under /api/v1.
func SetupRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/register", h.Auth.Register)
	auth.Post("/token", h.Auth.Token)

	api.Get("/products/:productId", h.Products.GetProduct)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(h.Resolver))

	// Product and history routes; role checks happen in the ledger service
	protected.Get("/products", h.Products.GetProducts)
	protected.Post("/products", h.Products.CreateProduct)
	protected.Put("/products/:productId", h.Products.UpdateProduct)
	protected.Get("/transactions/:productId", h.Products.GetTransactions)

	protected.Get("/trace/:productId", h.Audit.GetTrace)

	// Audit routes (regulator)
	audit := protected.Group("/audit", middleware.RequirePrivilege(h.Permissions, model.ActionViewAllTransactions))
	audit.Get("/stats", h.Audit.GetStats)
	audit.Get("/:productId/verify", h.Audit.Verify)
	audit.Get("/transactions/:id", h.Audit.GetEntry)
	audit.Post("/mirror/requeue", h.Audit.RequeueMirror)

	protected.Get("/roles", h.Roles.GetRoles)
}
