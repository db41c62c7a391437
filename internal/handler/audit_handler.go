package handler

import (
	"supplychain-ledger/internal/middleware"
	"supplychain-ledger/internal/service"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AuditHandler struct {
	trace     service.TraceService
	dashboard service.DashboardService
	log       *logger.Logger
}

func NewAuditHandler(trace service.TraceService, dashboard service.DashboardService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{trace: trace, dashboard: dashboard, log: log.Named("http.audit")}
}

// GetTrace assembles the provenance report
// GET /api/v1/trace/:productId
func (h *AuditHandler) GetTrace(c *fiber.Ctx) error {
	trace, err := h.trace.Trace(c.UserContext(), c.Params("productId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(trace)
}

// Verify replays a product's history against its row
// GET /api/v1/audit/:productId/verify
func (h *AuditHandler) Verify(c *fiber.Ctx) error {
	report, err := h.trace.Verify(c.UserContext(), c.Params("productId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !report.OK() {
		h.log.Warn().Str("product_id", report.ProductID).Bool("chain_valid", report.ChainValid).
			Bool("state_matches", report.StateMatches).Msg("ledger verification failed")
	}
	return c.JSON(report)
}

// GetStats returns ledger-wide counters
// GET /api/v1/audit/stats
func (h *AuditHandler) GetStats(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	stats, err := h.dashboard.Stats(c.UserContext(), principal)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(stats)
}

// GetEntry returns one log entry by its id
// GET /api/v1/audit/transactions/:id
func (h *AuditHandler) GetEntry(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transaction id")
	}

	entry, err := h.trace.Entry(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(entry)
}

// RequeueMirrorRequest is the body of a dead-letter requeue.
type RequeueMirrorRequest struct {
	Limit int `json:"limit"`
}

// RequeueMirror moves dead-lettered mirror rows back to pending
// POST /api/v1/audit/mirror/requeue
func (h *AuditHandler) RequeueMirror(c *fiber.Ctx) error {
	principal, _ := middleware.PrincipalFrom(c)

	req := RequeueMirrorRequest{Limit: 100}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	n, err := h.dashboard.RequeueDeadMirrorRows(c.UserContext(), principal, req.Limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info().Str("identity", principal.Identity).Int("requeued", n).Msg("dead mirror rows requeued")
	return c.JSON(fiber.Map{"requeued": n})
}
