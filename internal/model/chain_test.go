package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleTransaction() *Transaction {
	return &Transaction{
		ProductID:       "X-1",
		Sequence:        1,
		FromUser:        "p@example.com",
		ToUser:          "p@example.com",
		Action:          ActionCreated,
		ResultingStatus: StatusProduced,
		Location:        "Farm",
		Timestamp:       time.Date(2024, 3, 1, 10, 0, 0, 123456789, time.UTC),
	}
}

func TestSealUsesGenesisForFirstEntry(t *testing.T) {
	tx := sampleTransaction()
	tx.Seal("")

	assert.Equal(t, GenesisHash, tx.PrevHash)
	assert.Len(t, tx.Hash, 64)
	assert.Equal(t, 123456000, tx.Timestamp.Nanosecond(), "timestamp is truncated to microseconds")
}

func TestComputeHashDeterministic(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	a.Seal(GenesisHash)
	b.Seal(GenesisHash)

	assert.Equal(t, a.Hash, b.Hash)
}

func TestComputeHashDetectsFieldChanges(t *testing.T) {
	base := sampleTransaction()
	base.Seal(GenesisHash)

	tampered := sampleTransaction()
	tampered.ToUser = "mallory@example.com"
	tampered.Seal(GenesisHash)
	assert.NotEqual(t, base.Hash, tampered.Hash)

	relinked := sampleTransaction()
	relinked.Seal(base.Hash)
	assert.NotEqual(t, base.Hash, relinked.Hash)
}

func TestComputeHashIgnoresTimeZone(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	b.Timestamp = b.Timestamp.In(time.FixedZone("WIB", 7*60*60))

	assert.Equal(t, a.ComputeHash(GenesisHash), b.ComputeHash(GenesisHash))
}

func TestFieldBoundariesAreUnambiguous(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	a.FromUser, a.ToUser = "ab", "c"
	b.FromUser, b.ToUser = "a", "bc"

	assert.NotEqual(t, a.ComputeHash(GenesisHash), b.ComputeHash(GenesisHash))
}
