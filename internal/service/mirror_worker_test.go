package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"supplychain-ledger/internal/mirror"
	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu      sync.Mutex
	records []mirror.Record
	fail    bool
}

func (m *recordingMirror) Append(_ context.Context, rec mirror.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("chain node unreachable")
	}
	m.records = append(m.records, rec)
	return "ref-" + rec.TransactionID, nil
}

func TestMirrorWorkerDeliversAndRetries(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	f.ledger = f.newLedger(LedgerConfig{Mirroring: true}, f.products)
	ctx := context.Background()

	f.create(t, producer, "X-1")
	_, err := f.ledger.UpdateProduct(ctx, producer, "X-1", ProductUpdateInput{NewOwner: ptr(distributor.Identity)})
	require.NoError(t, err)

	target := &recordingMirror{fail: true}
	worker := NewMirrorWorker(f.outbox, target, nil, logger.Nop(), time.Second, 10)
	now := time.Now().UTC()
	worker.clock = func() time.Time { return now }

	n, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	summary, err := f.outbox.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Failed)

	// mirror failures never touch the ledger
	assert.Len(t, f.history(t, "X-1"), 2)
	report, err := f.trace.Verify(ctx, "X-1")
	require.NoError(t, err)
	assert.True(t, report.OK())

	// not due yet
	n, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	target.fail = false
	now = now.Add(mirrorRetryBackoff(1))
	n, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	summary, err = f.outbox.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Done)

	require.Len(t, target.records, 2)
	assert.Equal(t, int64(1), target.records[0].Sequence)
	assert.Equal(t, "X-1", target.records[0].ProductID)

	var rows []model.MirrorOutbox
	require.NoError(t, f.db.Order("sequence ASC").Find(&rows).Error)
	assert.Equal(t, "ref-"+rows[0].TransactionID.String(), rows[0].ExternalRef)
	assert.Equal(t, 1, rows[0].AttemptCount)
}

func TestMirrorWorkerDeadLetters(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	f.ledger = f.newLedger(LedgerConfig{Mirroring: true}, f.products)
	ctx := context.Background()
	f.create(t, producer, "X-1")

	worker := NewMirrorWorker(f.outbox, &recordingMirror{fail: true}, nil, logger.Nop(), time.Second, 10)
	now := time.Now().UTC()
	worker.clock = func() time.Time { return now }

	for attempt := 1; attempt <= 8; attempt++ {
		n, err := worker.ProcessOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n, "attempt %d", attempt)
		now = now.Add(mirrorRetryBackoff(attempt))
	}

	summary, err := f.outbox.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Dead)

	n, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequeuedDeadRowsAreDelivered(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	f.ledger = f.newLedger(LedgerConfig{Mirroring: true}, f.products)
	ctx := context.Background()
	f.create(t, producer, "X-1")

	target := &recordingMirror{fail: true}
	worker := NewMirrorWorker(f.outbox, target, nil, logger.Nop(), time.Second, 10)
	now := time.Now().UTC()
	worker.clock = func() time.Time { return now }
	for attempt := 1; attempt <= 8; attempt++ {
		_, err := worker.ProcessOnce(ctx)
		require.NoError(t, err)
		now = now.Add(mirrorRetryBackoff(attempt))
	}

	dash := NewDashboardService(f.products, f.txs, repository.NewUserRepo(f.db), f.outbox, nil)

	_, err := dash.RequeueDeadMirrorRows(ctx, producer, 10)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = dash.RequeueDeadMirrorRows(ctx, regulator, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = dash.RequeueDeadMirrorRows(ctx, regulator, MaxRequeueBatch+1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := dash.RequeueDeadMirrorRows(ctx, regulator, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	target.fail = false
	delivered, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	summary, err := f.outbox.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Dead)
	assert.Equal(t, int64(1), summary.Done)
	require.Len(t, target.records, 1)
	assert.Equal(t, "X-1", target.records[0].ProductID)
}

func TestMirrorRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Second, mirrorRetryBackoff(0))
	assert.Equal(t, time.Second, mirrorRetryBackoff(1))
	assert.Equal(t, 4*time.Second, mirrorRetryBackoff(3))
	assert.Equal(t, 256*time.Second, mirrorRetryBackoff(9))
	assert.Equal(t, 5*time.Minute, mirrorRetryBackoff(10))
	assert.Equal(t, 5*time.Minute, mirrorRetryBackoff(64))
}

func TestMirrorWorkerStopsOnCancel(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	worker := NewMirrorWorker(f.outbox, &recordingMirror{}, nil, logger.Nop(), 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
