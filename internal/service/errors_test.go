package service

import (
	"errors"
	"fmt"
	"testing"

	"supplychain-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestLedgerErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindForbidden, "role consumer may not add_product", nil))

	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "role consumer may not add_product", AsLedgerError(err).Message())
	assert.Equal(t, "not found", ErrNotFound.Message())
}

func TestStorageErrorMapping(t *testing.T) {
	assert.ErrorIs(t, storageError(fmt.Errorf("x: %w", repository.ErrNotFound), "gone"), ErrNotFound)
	assert.ErrorIs(t, storageError(repository.ErrStaleVersion, ""), ErrConflict)
	assert.ErrorIs(t, storageError(repository.ErrDuplicate, ""), ErrConflict)

	raw := errors.New("dial tcp: connection refused")
	le := storageError(raw, "")
	assert.ErrorIs(t, le, ErrStorageUnavailable)
	assert.ErrorIs(t, le, raw)
	assert.Equal(t, "storage unavailable", le.Message())

	assert.ErrorIs(t, AsLedgerError(raw), ErrStorageUnavailable)
}
