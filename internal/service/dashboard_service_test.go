package service

import (
	"context"
	"testing"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	f.create(t, producer, "X-1")
	f.create(t, producer, "X-2")
	_, err := f.ledger.UpdateProduct(ctx, producer, "X-1", ProductUpdateInput{NewOwner: ptr(distributor.Identity), Status: ptr(model.StatusInTransit)})
	require.NoError(t, err)

	dash := NewDashboardService(f.products, f.txs, repository.NewUserRepo(f.db), f.outbox, nil)

	_, err = dash.Stats(ctx, producer)
	assert.ErrorIs(t, err, ErrForbidden)

	stats, err := dash.Stats(ctx, regulator)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalProducts)
	assert.Equal(t, int64(3), stats.TotalTransactions)
	assert.ElementsMatch(t, []repository.StatusCount{
		{Status: model.StatusInTransit, Count: 1},
		{Status: model.StatusProduced, Count: 1},
	}, stats.ProductsByStatus)
	assert.ElementsMatch(t, []repository.ActionCount{
		{Action: "created", Count: 2},
		{Action: "transferred", Count: 1},
	}, stats.TransactionsByAction)
	require.NotNil(t, stats.Mirror)
	assert.Zero(t, stats.Mirror.Pending)
}
