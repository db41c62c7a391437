package service

import (
	"context"
	"fmt"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/pkg/logger"

	"github.com/google/uuid"
)

// Trace is a product's provenance report.
type Trace struct {
	Product         *model.Product      `json:"product"`
	History         []model.Transaction `json:"history"`
	Origin          *string             `json:"origin"`
	CurrentLocation string              `json:"current_location"`
	RolesInvolved   []string            `json:"roles_involved"`
}

// VerifyReport is the outcome of re-deriving a product from its history.
type VerifyReport struct {
	ProductID    string         `json:"productId"`
	Entries      int            `json:"entries"`
	ChainValid   bool           `json:"chain_valid"`
	StateMatches bool           `json:"state_matches"`
	Problems     []ChainProblem `json:"problems,omitempty"`
	Drift        []string       `json:"drift,omitempty"`
}

// OK reports whether the history is intact and agrees with the product row.
func (r VerifyReport) OK() bool {
	return r.ChainValid && r.StateMatches
}

type TraceService interface {
	Trace(ctx context.Context, productID string) (*Trace, error)
	History(ctx context.Context, productID string) ([]model.Transaction, error)
	Entry(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	Verify(ctx context.Context, productID string) (*VerifyReport, error)
	VerifyAll(ctx context.Context) ([]VerifyReport, error)
}

type traceService struct {
	products     repository.ProductRepository
	transactions repository.TransactionRepository
	log          *logger.Logger
}

func NewTraceService(products repository.ProductRepository, transactions repository.TransactionRepository, log *logger.Logger) TraceService {
	if log == nil {
		log = logger.Nop()
	}
	return &traceService{products: products, transactions: transactions, log: log.Named("trace")}
}

// Trace replays the log on every call; nothing is cached.
func (s *traceService) Trace(ctx context.Context, productID string) (*Trace, error) {
	product, err := s.products.FindByProductID(ctx, productID)
	if err != nil {
		return nil, storageError(err, "product "+productID+" not found")
	}

	t := &Trace{
		Product:         product,
		History:         []model.Transaction{},
		CurrentLocation: product.Location,
		RolesInvolved:   []string{},
	}
	seen := make(map[string]struct{})
	note := func(identity string) {
		if identity == "" {
			return
		}
		if _, ok := seen[identity]; ok {
			return
		}
		seen[identity] = struct{}{}
		t.RolesInvolved = append(t.RolesInvolved, identity)
	}

	for entry, err := range s.transactions.ReadAll(ctx, productID) {
		if err != nil {
			return nil, storageError(err, "")
		}
		if t.Origin == nil {
			origin := entry.FromUser
			t.Origin = &origin
		}
		note(entry.FromUser)
		note(entry.ToUser)
		t.History = append(t.History, entry)
	}
	return t, nil
}

// History is the public, ordered history of a known product.
func (s *traceService) History(ctx context.Context, productID string) ([]model.Transaction, error) {
	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return nil, storageError(err, "")
	}
	if !exists {
		return nil, newError(KindNotFound, "product "+productID+" not found", nil)
	}
	entries, err := s.transactions.List(ctx, productID)
	if err != nil {
		return nil, storageError(err, "")
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	return entries, nil
}

// Entry looks up one log entry, e.g. by the transaction_id a mirror record carries.
func (s *traceService) Entry(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	entry, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "transaction "+id.String()+" not found")
	}
	return entry, nil
}

func (s *traceService) Verify(ctx context.Context, productID string) (*VerifyReport, error) {
	product, err := s.products.FindByProductID(ctx, productID)
	if err != nil {
		return nil, storageError(err, "product "+productID+" not found")
	}

	state, problems, err := Replay(s.transactions.ReadAll(ctx, productID))
	if err != nil {
		return nil, storageError(err, "")
	}

	report := &VerifyReport{
		ProductID:  productID,
		Entries:    state.Entries,
		ChainValid: len(problems) == 0,
		Problems:   problems,
	}
	if state.Entries == 0 {
		report.Drift = []string{"product has no history"}
	} else {
		report.Drift = state.Diff(product)
	}
	report.StateMatches = len(report.Drift) == 0

	if !report.OK() {
		s.log.Warn().
			Str("productId", productID).
			Int("problems", len(problems)).
			Strs("drift", report.Drift).
			Msg("ledger verification failed")
	}
	return report, nil
}

func (s *traceService) VerifyAll(ctx context.Context) ([]VerifyReport, error) {
	products, err := s.products.FindAll(ctx)
	if err != nil {
		return nil, storageError(err, "")
	}
	reports := make([]VerifyReport, 0, len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := s.Verify(ctx, p.ProductID)
		if err != nil {
			return reports, fmt.Errorf("verify %s: %w", p.ProductID, err)
		}
		reports = append(reports, *r)
	}
	return reports, nil
}
