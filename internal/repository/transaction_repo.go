package repository

import (
	"context"
	"fmt"
	"iter"

	"supplychain-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionCount is one row of the transactions-by-action breakdown.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// TransactionRepository is append-only: there is no update or delete.
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Append(ctx context.Context, entry *model.Transaction) (uuid.UUID, error)
	ReadAll(ctx context.Context, productID string) iter.Seq2[model.Transaction, error]
	List(ctx context.Context, productID string) ([]model.Transaction, error)
	Last(ctx context.Context, productID string) (*model.Transaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	CountByAction(ctx context.Context) ([]ActionCount, error)
	Count(ctx context.Context) (int64, error)
}

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db}
}

func (r *transactionRepo) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepo{tx}
}

// historyOrder sorts by timestamp then sequence. Columns are quoted by gorm.
var historyOrder = clause.OrderBy{Columns: []clause.OrderByColumn{
	{Column: clause.Column{Name: "timestamp"}},
	{Column: clause.Column{Name: "sequence"}},
}}

// Append inserts one entry. A (product_id, sequence) collision returns ErrDuplicate.
func (r *transactionRepo) Append(ctx context.Context, entry *model.Transaction) (uuid.UUID, error) {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return uuid.Nil, fmt.Errorf("append transaction %s#%d: %w", entry.ProductID, entry.Sequence, translate(err))
	}
	return entry.ID, nil
}

// ReadAll streams a product's history oldest first. Each range re-runs the query,
// so the sequence can be consumed more than once. Callers must not issue other
// queries on the same connection while ranging.
func (r *transactionRepo) ReadAll(ctx context.Context, productID string) iter.Seq2[model.Transaction, error] {
	return func(yield func(model.Transaction, error) bool) {
		rows, err := r.db.WithContext(ctx).Model(&model.Transaction{}).
			Where("product_id = ?", productID).
			Clauses(historyOrder).
			Rows()
		if err != nil {
			yield(model.Transaction{}, fmt.Errorf("read history %s: %w", productID, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var entry model.Transaction
			if err := r.db.ScanRows(rows, &entry); err != nil {
				yield(model.Transaction{}, fmt.Errorf("scan history %s: %w", productID, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Transaction{}, fmt.Errorf("iterate history %s: %w", productID, err))
		}
	}
}

func (r *transactionRepo) List(ctx context.Context, productID string) ([]model.Transaction, error) {
	var entries []model.Transaction
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Clauses(historyOrder).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", productID, err)
	}
	return entries, nil
}

// Last returns the entry with the highest sequence, or ErrNotFound for an empty history.
func (r *transactionRepo) Last(ctx context.Context, productID string) (*model.Transaction, error) {
	var entry model.Transaction
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "sequence"}, Desc: true}).
		Take(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("last transaction %s: %w", productID, translate(err))
	}
	return &entry, nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var entry model.Transaction
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", id, translate(err))
	}
	return &entry, nil
}

func (r *transactionRepo) CountByAction(ctx context.Context) ([]ActionCount, error) {
	var results []ActionCount
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Select("action, COUNT(*) as count").
		Group("action").
		Order("action ASC").
		Scan(&results).Error
	return results, err
}

func (r *transactionRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).Count(&count).Error
	return count, err
}
