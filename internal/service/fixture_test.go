package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/testdb"
	"supplychain-ledger/pkg/logger"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	producer    = model.Principal{Identity: "farm@example.com", Role: model.RoleProducer}
	producer2   = model.Principal{Identity: "orchard@example.com", Role: model.RoleProducer}
	distributor = model.Principal{Identity: "truck@example.com", Role: model.RoleDistributor}
	retailer    = model.Principal{Identity: "shop@example.com", Role: model.RoleRetailer}
	consumer    = model.Principal{Identity: "alice@example.com", Role: model.RoleConsumer}
	regulator   = model.Principal{Identity: "fda@example.gov", Role: model.RoleRegulator}
	stranger    = model.Principal{Identity: "eve@example.com", Role: model.RoleUnknown}
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db       *gorm.DB
	products repository.ProductRepository
	txs      repository.TransactionRepository
	outbox   repository.OutboxRepository
	clock    *fakeClock
	ledger   LedgerService
	trace    TraceService
}

func newFixture(t *testing.T, cfg LedgerConfig) *fixture {
	t.Helper()
	db := testdb.New(t)
	f := &fixture{
		db:       db,
		products: repository.NewProductRepo(db),
		txs:      repository.NewTransactionRepo(db),
		outbox:   repository.NewOutboxRepo(db),
		clock:    &fakeClock{now: t0, step: time.Second},
	}
	f.ledger = f.newLedger(cfg, f.products)
	f.trace = NewTraceService(f.products, f.txs, logger.Nop())
	return f
}

func (f *fixture) newLedger(cfg LedgerConfig, products repository.ProductRepository) LedgerService {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return NewLedgerService(LedgerDeps{
		DB:           f.db,
		Products:     products,
		Transactions: f.txs,
		Outbox:       f.outbox,
		Permissions:  DefaultPermissionTable(),
		Log:          logger.Nop(),
		Config:       cfg,
		Clock:        f.clock.Now,
	})
}

func (f *fixture) create(t *testing.T, who model.Principal, id string) *TransitionResult {
	t.Helper()
	res, err := f.ledger.CreateProduct(context.Background(), who, CreateProductInput{ProductID: id, Name: "Arabica beans", Location: "Farm"})
	require.NoError(t, err)
	return res
}

func (f *fixture) history(t *testing.T, id string) []model.Transaction {
	t.Helper()
	entries, err := f.txs.List(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func (f *fixture) count(t *testing.T, table interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(table).Count(&n).Error)
	return n
}

func ptr(s string) *string { return &s }
