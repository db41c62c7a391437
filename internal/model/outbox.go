package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outbox statuses.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxFailed     = "failed"
	OutboxDead       = "dead"
	OutboxDone       = "done"
)

// MirrorOutbox queues an accepted transaction for the external immutable log.
// Rows are written in the same DB transaction as the ledger entry.
type MirrorOutbox struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	TransactionID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"transaction_id"`
	ProductID     string            `gorm:"type:varchar(64);not null;index" json:"productId"`
	Sequence      int64             `gorm:"not null" json:"sequence"`
	Payload       datatypes.JSONMap `json:"payload"`
	Status        string            `gorm:"type:varchar(20);not null;index:idx_outbox_due,priority:1" json:"status"`
	AttemptCount  int               `gorm:"not null;default:0" json:"attempt_count"`
	NextAttemptAt time.Time         `gorm:"not null;index:idx_outbox_due,priority:2" json:"next_attempt_at"`
	LastError     string            `gorm:"type:text" json:"last_error,omitempty"`
	ExternalRef   string            `gorm:"type:varchar(255)" json:"external_ref,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (MirrorOutbox) TableName() string {
	return "mirror_outbox"
}

// NewMirrorOutbox builds a pending outbox row for an appended transaction.
func NewMirrorOutbox(t *Transaction, now time.Time) *MirrorOutbox {
	now = now.UTC()
	return &MirrorOutbox{
		TransactionID: t.ID,
		ProductID:     t.ProductID,
		Sequence:      t.Sequence,
		Payload: datatypes.JSONMap{
			"id":        t.ID.String(),
			"productId": t.ProductID,
			"sequence":  t.Sequence,
			"from_user": t.FromUser,
			"to_user":   t.ToUser,
			"action":    string(t.Action),
			"status":    t.ResultingStatus,
			"location":  t.Location,
			"note":      t.Note,
			"timestamp": t.Timestamp.UTC().Format(time.RFC3339Nano),
			"hash":      t.Hash,
			"prev_hash": t.PrevHash,
		},
		Status:        OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
