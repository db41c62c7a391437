package repository

import (
	"context"
	"errors"

	"supplychain-ledger/internal/model"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindAll(ctx context.Context) ([]model.RoleRecord, error)
	FindByCode(ctx context.Context, code string) (*model.RoleRecord, error)
	SeedDefaults(ctx context.Context) error
}

type roleRepo struct {
	db *gorm.DB
}

func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) FindAll(ctx context.Context) ([]model.RoleRecord, error) {
	var roles []model.RoleRecord
	err := r.db.WithContext(ctx).Preload("Privileges").Order("id ASC").Find(&roles).Error
	return roles, err
}

func (r *roleRepo) FindByCode(ctx context.Context, code string) (*model.RoleRecord, error) {
	var role model.RoleRecord
	err := r.db.WithContext(ctx).Preload("Privileges").Where("code = ?", code).First(&role).Error
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// SeedDefaults creates missing roles and attaches their default privileges.
// Privileges must be seeded first. Existing roles keep whatever privileges they have.
func (r *roleRepo) SeedDefaults(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	for _, defaultRole := range model.DefaultRoles {
		var existingRole model.RoleRecord
		err := db.Where("code = ?", defaultRole.Code).First(&existingRole).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		role := defaultRole
		codes := model.DefaultRolePrivileges[model.Role(role.Code)]
		if len(codes) > 0 {
			if err := db.Where("code IN ?", codes).Find(&role.Privileges).Error; err != nil {
				return err
			}
		}
		if err := db.Create(&role).Error; err != nil {
			return err
		}
	}
	return nil
}
