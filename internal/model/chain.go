package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// GenesisHash is the PrevHash of the first entry of every product history.
var GenesisHash = strings.Repeat("0", 64)

// LedgerTime normalizes timestamps to what both postgres and sqlite round-trip.
func LedgerTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the chain hash of t given its predecessor's hash.
// Fields are length-prefixed so no two entries share a canonical form.
func (t *Transaction) ComputeHash(prevHash string) string {
	fields := []string{
		t.ProductID,
		strconv.FormatInt(t.Sequence, 10),
		t.FromUser,
		t.ToUser,
		string(t.Action),
		t.ResultingStatus,
		t.Location,
		t.Note,
		LedgerTime(t.Timestamp).Format(time.RFC3339Nano),
		prevHash,
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
		b.WriteByte('|')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Seal sets PrevHash and Hash for t.
func (t *Transaction) Seal(prevHash string) {
	if prevHash == "" {
		prevHash = GenesisHash
	}
	t.Timestamp = LedgerTime(t.Timestamp)
	t.PrevHash = prevHash
	t.Hash = t.ComputeHash(prevHash)
}
