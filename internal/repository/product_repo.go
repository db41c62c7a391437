package repository

import (
	"context"
	"fmt"

	"supplychain-ledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusCount is one row of the products-by-status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository
	Create(ctx context.Context, product *model.Product) error
	Exists(ctx context.Context, productID string) (bool, error)
	FindByProductID(ctx context.Context, productID string) (*model.Product, error)
	FindForUpdate(ctx context.Context, productID string) (*model.Product, error)
	ApplyUpdate(ctx context.Context, productID string, expectedVersion int64, update model.ProductUpdate) error
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByOwner(ctx context.Context, owner string) ([]model.Product, error)
	FindLimited(ctx context.Context, limit int) ([]model.Product, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support row locks.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (r *productRepo) WithTx(tx *gorm.DB) ProductRepository {
	return &productRepo{tx}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("create product %s: %w", product.ProductID, translate(err))
	}
	return nil
}

func (r *productRepo) Exists(ctx context.Context, productID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("product_id = ?", productID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count product %s: %w", productID, err)
	}
	return count > 0, nil
}

func (r *productRepo) FindByProductID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := r.db.WithContext(ctx).First(&product, "product_id = ?", productID).Error; err != nil {
		return nil, fmt.Errorf("find product %s: %w", productID, translate(err))
	}
	return &product, nil
}

// FindForUpdate reads the row and, on postgres, holds its lock until the transaction ends.
func (r *productRepo) FindForUpdate(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := lockForUpdate(r.db.WithContext(ctx)).First(&product, "product_id = ?", productID).Error; err != nil {
		return nil, fmt.Errorf("lock product %s: %w", productID, translate(err))
	}
	return &product, nil
}

// ApplyUpdate writes the update only if the stored version still equals expectedVersion.
func (r *productRepo) ApplyUpdate(ctx context.Context, productID string, expectedVersion int64, update model.ProductUpdate) error {
	res := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("product_id = ? AND version = ?", productID, expectedVersion).
		Updates(update.Columns())
	if res.Error != nil {
		return fmt.Errorf("update product %s: %w", productID, translate(res.Error))
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := r.Exists(ctx, productID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("update product %s: %w", productID, ErrNotFound)
	}
	return fmt.Errorf("update product %s at version %d: %w", productID, expectedVersion, ErrStaleVersion)
}

func (r *productRepo) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("created_at ASC, product_id ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) FindByOwner(ctx context.Context, owner string) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Where("current_owner = ?", owner).Order("created_at ASC, product_id ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) FindLimited(ctx context.Context, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("created_at ASC, product_id ASC").Limit(limit).Find(&products).Error
	return products, err
}

func (r *productRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var results []StatusCount
	err := r.db.WithContext(ctx).Model(&model.Product{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&results).Error
	return results, err
}
