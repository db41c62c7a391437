package service

import (
	"context"
	"time"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
)

// LedgerStats is the regulator overview.
type LedgerStats struct {
	ProductsByStatus     []repository.StatusCount  `json:"products_by_status"`
	TransactionsByAction []repository.ActionCount  `json:"transactions_by_action"`
	TotalProducts        int64                     `json:"total_products"`
	TotalTransactions    int64                     `json:"total_transactions"`
	UsersByRole          map[model.Role]int64      `json:"users_by_role"`
	Mirror               *repository.OutboxSummary `json:"mirror,omitempty"`
}

type DashboardService interface {
	Stats(ctx context.Context, principal model.Principal) (*LedgerStats, error)
	RequeueDeadMirrorRows(ctx context.Context, principal model.Principal, limit int) (int, error)
}

// MaxRequeueBatch caps one requeue request.
const MaxRequeueBatch = 500

type dashboardService struct {
	products     repository.ProductRepository
	transactions repository.TransactionRepository
	users        repository.UserRepository
	outbox       repository.OutboxRepository
	perms        *PermissionTable
}

func NewDashboardService(products repository.ProductRepository, transactions repository.TransactionRepository, users repository.UserRepository, outbox repository.OutboxRepository, perms *PermissionTable) DashboardService {
	if perms == nil {
		perms = DefaultPermissionTable()
	}
	return &dashboardService{
		products:     products,
		transactions: transactions,
		users:        users,
		outbox:       outbox,
		perms:        perms,
	}
}

func (s *dashboardService) Stats(ctx context.Context, principal model.Principal) (*LedgerStats, error) {
	if !authenticated(principal) {
		return nil, newError(KindUnauthenticated, "", nil)
	}
	if !s.perms.Allows(principal.Role, model.ActionViewAllTransactions) {
		return nil, newError(KindForbidden, "role "+principal.Role.String()+" may not view ledger statistics", nil)
	}

	var (
		stats LedgerStats
		err   error
	)
	if stats.ProductsByStatus, err = s.products.CountByStatus(ctx); err != nil {
		return nil, storageError(err, "")
	}
	for _, c := range stats.ProductsByStatus {
		stats.TotalProducts += c.Count
	}
	if stats.TransactionsByAction, err = s.transactions.CountByAction(ctx); err != nil {
		return nil, storageError(err, "")
	}
	if stats.TotalTransactions, err = s.transactions.Count(ctx); err != nil {
		return nil, storageError(err, "")
	}
	if stats.UsersByRole, err = s.users.CountByRole(ctx); err != nil {
		return nil, storageError(err, "")
	}
	if s.outbox != nil {
		if stats.Mirror, err = s.outbox.Summary(ctx); err != nil {
			return nil, storageError(err, "")
		}
	}
	return &stats, nil
}

// RequeueDeadMirrorRows puts dead-lettered mirror rows back in the queue.
func (s *dashboardService) RequeueDeadMirrorRows(ctx context.Context, principal model.Principal, limit int) (int, error) {
	if !authenticated(principal) {
		return 0, newError(KindUnauthenticated, "", nil)
	}
	if !s.perms.Allows(principal.Role, model.ActionViewAllTransactions) {
		return 0, newError(KindForbidden, "role "+principal.Role.String()+" may not requeue mirror rows", nil)
	}
	if limit <= 0 || limit > MaxRequeueBatch {
		return 0, newError(KindInvalidInput, "limit must be between 1 and 500", nil)
	}
	if s.outbox == nil {
		return 0, nil
	}
	n, err := s.outbox.RequeueDead(ctx, limit, time.Now())
	if err != nil {
		return 0, storageError(err, "")
	}
	return n, nil
}
