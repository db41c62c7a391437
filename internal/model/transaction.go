package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionAction is the kind of an accepted transition.
type TransactionAction string

const (
	ActionCreated     TransactionAction = "created"
	ActionTransferred TransactionAction = "transferred"
	ActionUpdated     TransactionAction = "updated"
)

// ErrImmutableTransaction is returned by the gorm hooks below.
var ErrImmutableTransaction = errors.New("transactions are append-only")

// Transaction is one entry of a product's append-only history. It records the
// post-transition owner (ToUser), status and location so the product row can
// be rebuilt by replaying the log.
type Transaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primary_key;" json:"id"`
	ProductID       string            `gorm:"column:product_id;type:varchar(64);not null;uniqueIndex:idx_tx_product_seq,priority:1;index:idx_tx_product_time,priority:1" json:"productId"`
	Sequence        int64             `gorm:"not null;uniqueIndex:idx_tx_product_seq,priority:2" json:"sequence"`
	FromUser        string            `gorm:"type:varchar(255);not null;index" json:"from_user"`
	ToUser          string            `gorm:"type:varchar(255);not null;index" json:"to_user"`
	Action          TransactionAction `gorm:"type:varchar(20);not null" json:"action"`
	ResultingStatus string            `gorm:"type:varchar(100);not null" json:"status"`
	Location        string            `gorm:"type:varchar(255)" json:"location,omitempty"`
	Note            string            `gorm:"type:text" json:"note,omitempty"`
	Timestamp       time.Time         `gorm:"not null;index:idx_tx_product_time,priority:2" json:"timestamp"`
	PrevHash        string            `gorm:"type:char(64);not null" json:"prev_hash"`
	Hash            string            `gorm:"type:char(64);not null" json:"hash"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate generates the log entry id.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any attempt to rewrite a log entry.
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableTransaction
}

// BeforeDelete rejects any attempt to remove a log entry.
func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableTransaction
}
