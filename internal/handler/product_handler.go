package handler

import (
	"supplychain-ledger/internal/middleware"
	"supplychain-ledger/internal/service"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type ProductHandler struct {
	ledger service.LedgerService
	trace  service.TraceService
	log    *logger.Logger
}

func NewProductHandler(ledger service.LedgerService, trace service.TraceService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{ledger: ledger, trace: trace, log: log.Named("http.products")}
}

// CreateProduct registers a product owned by the caller
// POST /api/v1/products
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	var req service.CreateProductInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.ledger.CreateProduct(c.UserContext(), principal, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// UpdateProduct transfers ownership or updates status/location
// PUT /api/v1/products/:productId
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	var req service.ProductUpdateInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.ledger.UpdateProduct(c.UserContext(), principal, c.Params("productId"), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(result)
}

// GetProduct is public: the product with its full history
// GET /api/v1/products/:productId
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	productID := c.Params("productId")

	product, err := h.ledger.GetProduct(c.UserContext(), productID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	history, err := h.trace.History(c.UserContext(), productID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"product": product,
		"history": history,
	})
}

// GetProducts lists what the caller's role may see
// GET /api/v1/products
func (h *ProductHandler) GetProducts(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	products, err := h.ledger.ListVisibleTo(c.UserContext(), principal)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"products": products})
}

// GetTransactions returns a product's history
// GET /api/v1/transactions/:productId
func (h *ProductHandler) GetTransactions(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	txs, err := h.ledger.TransactionsFor(c.UserContext(), principal, c.Params("productId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"transactions": txs})
}
