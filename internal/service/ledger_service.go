package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"supplychain-ledger/internal/metrics"
	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/ws"
	"supplychain-ledger/pkg/logger"
	"supplychain-ledger/pkg/validator"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// ConsumerListLimit caps how many products a consumer listing returns.
	ConsumerListLimit = 10

	createNote = "Product created and registered"
)

// CreateProductInput is the payload of a product registration.
type CreateProductInput struct {
	ProductID   string                 `json:"productId" validate:"omitempty,product_id,max=64"`
	Name        string                 `json:"name" validate:"required,notblank,max=255"`
	Description string                 `json:"description"`
	Category    string                 `json:"category" validate:"max=100"`
	Quantity    *int                   `json:"quantity" validate:"omitempty,gte=0"`
	Location    string                 `json:"location" validate:"max=255"`
	Price       decimal.NullDecimal    `json:"price"`
	ImageURL    string                 `json:"image_url" validate:"omitempty,url,max=512"`
	DateCreated string                 `json:"date_created" validate:"omitempty,datetime=2006-01-02"`
	Status      string                 `json:"status" validate:"max=100"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ProductUpdateInput is a transfer when NewOwner is set, otherwise a status/location update.
type ProductUpdateInput struct {
	NewOwner *string `json:"new_owner" validate:"omitempty,max=255"`
	Status   *string `json:"status" validate:"omitempty,max=100"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	Note     string  `json:"note"`
}

// TransitionResult is what an accepted write returns.
type TransitionResult struct {
	Product       *model.Product     `json:"product"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	Transaction   *model.Transaction `json:"transaction"`
}

// LedgerConfig tunes the transition engine.
type LedgerConfig struct {
	StrictOwnership bool
	MaxRetries      int
	Mirroring       bool
}

type LedgerService interface {
	CreateProduct(ctx context.Context, principal model.Principal, in CreateProductInput) (*TransitionResult, error)
	UpdateProduct(ctx context.Context, principal model.Principal, productID string, in ProductUpdateInput) (*TransitionResult, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
	ListVisibleTo(ctx context.Context, principal model.Principal) ([]model.Product, error)
	TransactionsFor(ctx context.Context, principal model.Principal, productID string) ([]model.Transaction, error)
}

// LedgerDeps wires the engine. Hub and Metrics may be nil.
type LedgerDeps struct {
	DB           *gorm.DB
	Products     repository.ProductRepository
	Transactions repository.TransactionRepository
	Outbox       repository.OutboxRepository
	Permissions  *PermissionTable
	Hub          *ws.Hub
	Metrics      *metrics.LedgerMetrics
	Log          *logger.Logger
	Config       LedgerConfig

	Clock func() time.Time
	NewID func() string
}

type ledgerService struct {
	db           *gorm.DB
	products     repository.ProductRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
	perms        *PermissionTable
	hub          *ws.Hub
	metrics      *metrics.LedgerMetrics
	log          *logger.Logger
	cfg          LedgerConfig
	clock        func() time.Time
	newID        func() string
	locks        productLocks
}

func NewLedgerService(d LedgerDeps) LedgerService {
	s := &ledgerService{
		db:           d.DB,
		products:     d.Products,
		transactions: d.Transactions,
		outbox:       d.Outbox,
		perms:        d.Permissions,
		hub:          d.Hub,
		metrics:      d.Metrics,
		log:          d.Log,
		cfg:          d.Config,
		clock:        d.Clock,
		newID:        d.NewID,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Named("ledger")
	if s.perms == nil {
		s.perms = DefaultPermissionTable()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = NewProductID
	}
	if s.cfg.MaxRetries < 1 {
		s.cfg.MaxRetries = 1
	}
	return s
}

// NewProductID returns a time-ordered unique product id.
func NewProductID() string {
	return "PRD-" + ulid.Make().String()
}

func (s *ledgerService) CreateProduct(ctx context.Context, principal model.Principal, in CreateProductInput) (*TransitionResult, error) {
	start := time.Now()
	res, err := s.createProduct(ctx, principal, in)
	s.finish("create", start, err)
	return res, err
}

func (s *ledgerService) createProduct(ctx context.Context, principal model.Principal, in CreateProductInput) (*TransitionResult, error) {
	if err := s.authorize(principal, model.ActionAddProduct, in.ProductID); err != nil {
		return nil, err
	}
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		return nil, newError(KindInvalidInput, validator.Summary(errs), nil)
	}

	id := strings.TrimSpace(in.ProductID)
	if id == "" {
		id = s.newID()
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = model.StatusProduced
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}

	unlock := s.locks.lock(id)
	defer unlock()

	now := model.LedgerTime(s.clock())
	product := &model.Product{
		ProductID:    id,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Category:     in.Category,
		Quantity:     quantity,
		Location:     in.Location,
		Price:        in.Price,
		ImageURL:     in.ImageURL,
		DateCreated:  in.DateCreated,
		Metadata:     in.Metadata,
		CurrentOwner: principal.Identity,
		Status:       status,
		Version:      1,
		CreatedAt:    now,
		LastUpdated:  now,
	}
	entry := &model.Transaction{
		ProductID:       id,
		Sequence:        1,
		FromUser:        principal.Identity,
		ToUser:          principal.Identity,
		Action:          model.ActionCreated,
		ResultingStatus: status,
		Location:        in.Location,
		Note:            createNote,
		Timestamp:       now,
	}
	entry.Seal(model.GenesisHash)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		exists, err := products.Exists(ctx, id)
		if err != nil {
			return storageError(err, "")
		}
		if exists {
			return newError(KindDuplicateID, "product "+id+" already exists", nil)
		}
		if err := products.Create(ctx, product); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return newError(KindDuplicateID, "product "+id+" already exists", err)
			}
			return storageError(err, "")
		}
		return s.appendEntry(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, AsLedgerError(err)
	}

	s.accepted(entry)
	return &TransitionResult{Product: product, TransactionID: entry.ID, Transaction: entry}, nil
}

func (s *ledgerService) UpdateProduct(ctx context.Context, principal model.Principal, productID string, in ProductUpdateInput) (*TransitionResult, error) {
	start := time.Now()
	var (
		res *TransitionResult
		err error
	)
	for attempt := 1; ; attempt++ {
		res, err = s.updateProduct(ctx, principal, productID, in)
		if err == nil || !errors.Is(err, ErrConflict) || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		s.metrics.Conflict()
		s.log.Debug().Str("productId", productID).Int("attempt", attempt).Msg("version conflict, retrying")
	}
	s.finish("update", start, err)
	return res, err
}

func (s *ledgerService) updateProduct(ctx context.Context, principal model.Principal, productID string, in ProductUpdateInput) (*TransitionResult, error) {
	if !authenticated(principal) {
		return nil, newError(KindUnauthenticated, "", nil)
	}

	unlock := s.locks.lock(productID)
	defer unlock()

	var (
		updated *model.Product
		entry   *model.Transaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		current, err := products.FindForUpdate(ctx, productID)
		if err != nil {
			return storageError(err, "product "+productID+" not found")
		}

		if err := s.authorize(principal, model.ActionUpdateProduct, productID); err != nil {
			return err
		}
		if s.cfg.StrictOwnership && principal.Role != model.RoleRegulator && current.CurrentOwner != principal.Identity {
			s.log.Warn().
				Str("identity", principal.Identity).
				Str("role", principal.Role.String()).
				Str("productId", productID).
				Str("owner", current.CurrentOwner).
				Msg("update by non-owner rejected")
			return newError(KindForbidden, "only the current owner may update this product", nil)
		}

		next, upd, err := s.plan(current, principal, in)
		if err != nil {
			return err
		}

		prevHash := model.GenesisHash
		last, err := s.transactions.WithTx(tx).Last(ctx, productID)
		switch {
		case err == nil:
			prevHash = last.Hash
			if next.Timestamp.Before(last.Timestamp) {
				next.Timestamp = last.Timestamp
			}
		case !errors.Is(err, repository.ErrNotFound):
			return storageError(err, "")
		}
		next.Timestamp = model.LedgerTime(next.Timestamp)
		next.Seal(prevHash)
		upd.LastUpdated = next.Timestamp

		if err := products.ApplyUpdate(ctx, productID, current.Version, upd); err != nil {
			return storageError(err, "product "+productID+" not found")
		}
		if err := s.appendEntry(ctx, tx, next, next.Timestamp); err != nil {
			return err
		}

		applied := *current
		applied.CurrentOwner = next.ToUser
		applied.Status = next.ResultingStatus
		applied.Location = next.Location
		applied.Version = upd.Version
		applied.LastUpdated = next.Timestamp
		updated, entry = &applied, next
		return nil
	})
	if err != nil {
		return nil, AsLedgerError(err)
	}

	s.accepted(entry)
	return &TransitionResult{Product: updated, TransactionID: entry.ID, Transaction: entry}, nil
}

// plan validates the request against the current row and builds the log entry and row update.
func (s *ledgerService) plan(current *model.Product, principal model.Principal, in ProductUpdateInput) (*model.Transaction, model.ProductUpdate, error) {
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		return nil, model.ProductUpdate{}, newError(KindInvalidInput, validator.Summary(errs), nil)
	}

	var status, location *string
	if in.Status != nil {
		v := strings.TrimSpace(*in.Status)
		if v == "" {
			return nil, model.ProductUpdate{}, newError(KindInvalidInput, "status must not be blank", nil)
		}
		status = &v
	}
	if in.Location != nil {
		if v := strings.TrimSpace(*in.Location); v != "" {
			location = &v
		}
	}

	entry := &model.Transaction{
		ProductID: current.ProductID,
		Sequence:  current.Version + 1,
		Location:  current.Location,
		Note:      in.Note,
		Timestamp: s.clock(),
	}
	upd := model.ProductUpdate{Version: current.Version + 1}
	if location != nil {
		entry.Location = *location
		upd.Location = location
	}

	if in.NewOwner != nil {
		owner := strings.TrimSpace(*in.NewOwner)
		if owner == "" {
			return nil, model.ProductUpdate{}, newError(KindInvalidInput, "new_owner must not be blank", nil)
		}
		if status == nil {
			transferred := model.StatusTransferred
			status = &transferred
		}
		entry.Action = model.ActionTransferred
		entry.FromUser = current.CurrentOwner
		entry.ToUser = owner
		entry.ResultingStatus = *status
		upd.CurrentOwner = &owner
		upd.Status = status
		return entry, upd, nil
	}

	if status == nil && location == nil {
		return nil, model.ProductUpdate{}, newError(KindInvalidInput, "status or location is required", nil)
	}
	entry.Action = model.ActionUpdated
	entry.FromUser = principal.Identity
	entry.ToUser = current.CurrentOwner
	entry.ResultingStatus = current.Status
	if status != nil {
		entry.ResultingStatus = *status
		upd.Status = status
	}
	return entry, upd, nil
}

// appendEntry writes the log entry and its mirror row inside tx.
func (s *ledgerService) appendEntry(ctx context.Context, tx *gorm.DB, entry *model.Transaction, now time.Time) error {
	if _, err := s.transactions.WithTx(tx).Append(ctx, entry); err != nil {
		return storageError(err, "")
	}
	if s.cfg.Mirroring && s.outbox != nil {
		if err := s.outbox.WithTx(tx).Enqueue(ctx, model.NewMirrorOutbox(entry, now)); err != nil {
			return storageError(err, "")
		}
	}
	return nil
}

func (s *ledgerService) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	p, err := s.products.FindByProductID(ctx, productID)
	if err != nil {
		return nil, storageError(err, "product "+productID+" not found")
	}
	return p, nil
}

func (s *ledgerService) ListVisibleTo(ctx context.Context, principal model.Principal) ([]model.Product, error) {
	if !authenticated(principal) {
		return nil, newError(KindUnauthenticated, "", nil)
	}

	var (
		products []model.Product
		err      error
	)
	switch {
	case s.perms.Allows(principal.Role, model.ActionViewAllProducts):
		products, err = s.products.FindAll(ctx)
	case s.perms.Allows(principal.Role, model.ActionViewOwnProducts):
		products, err = s.products.FindByOwner(ctx, principal.Identity)
	case s.perms.Allows(principal.Role, model.ActionViewProduct):
		products, err = s.products.FindLimited(ctx, ConsumerListLimit)
		for i := range products {
			products[i] = products[i].PublicView()
		}
	default:
		s.metrics.Rejected("list", string(KindForbidden))
		return nil, newError(KindForbidden, "role "+principal.Role.String()+" may not list products", nil)
	}
	if err != nil {
		return nil, storageError(err, "")
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

func (s *ledgerService) TransactionsFor(ctx context.Context, principal model.Principal, productID string) ([]model.Transaction, error) {
	if !authenticated(principal) {
		return nil, newError(KindUnauthenticated, "", nil)
	}
	if !principal.Role.Valid() {
		return nil, newError(KindForbidden, "unknown role", nil)
	}
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
	return entries, nil
}

// authenticated only checks for an identity. Unknown roles fail the permission check instead.
func authenticated(p model.Principal) bool {
	return strings.TrimSpace(p.Identity) != ""
}

func (s *ledgerService) authorize(principal model.Principal, action, productID string) error {
	if !authenticated(principal) {
		return newError(KindUnauthenticated, "", nil)
	}
	if s.perms.Allows(principal.Role, action) {
		return nil
	}
	s.log.Warn().
		Str("identity", principal.Identity).
		Str("role", principal.Role.String()).
		Str("action", action).
		Str("productId", productID).
		Msg("permission denied")
	return newError(KindForbidden, "role "+principal.Role.String()+" may not "+action, nil)
}

func (s *ledgerService) finish(operation string, start time.Time, err error) {
	s.metrics.ObserveDuration(operation, time.Since(start).Seconds())
	if err == nil {
		return
	}
	le := AsLedgerError(err)
	s.metrics.Rejected(operation, string(le.Kind))
	if le.Kind == KindStorageUnavailable || le.Kind == KindConflict {
		s.log.Error().Err(err).Str("operation", operation).Msg("ledger write failed")
	}
}

// accepted runs after commit.
func (s *ledgerService) accepted(entry *model.Transaction) {
	s.metrics.TransitionAccepted(string(entry.Action))
	s.log.Info().
		Str("productId", entry.ProductID).
		Int64("sequence", entry.Sequence).
		Str("action", string(entry.Action)).
		Str("from", entry.FromUser).
		Str("to", entry.ToUser).
		Str("status", entry.ResultingStatus).
		Msg("transition accepted")
	s.hub.Publish(ws.Event{
		Type:          "transition",
		ProductID:     entry.ProductID,
		TransactionID: entry.ID.String(),
		Sequence:      entry.Sequence,
		Action:        string(entry.Action),
		FromUser:      entry.FromUser,
		ToUser:        entry.ToUser,
		Status:        entry.ResultingStatus,
		Location:      entry.Location,
		Timestamp:     entry.Timestamp,
	})
}
