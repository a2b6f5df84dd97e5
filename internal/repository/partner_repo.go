package repository

import (
	"context"
	"strings"

	"warehouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PartnerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Partner, error)
	SearchSuppliers(ctx context.Context, keyword string, offset, limit int) ([]model.Partner, int64, error)
}

type partnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) PartnerRepository {
	return &partnerRepository{db: db}
}

func (r *partnerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	var partner model.Partner
	if err := GetDB(ctx, r.db).First(&partner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

// SearchSuppliers lists active partners that may supply goods.
func (r *partnerRepository) SearchSuppliers(ctx context.Context, keyword string, offset, limit int) ([]model.Partner, int64, error) {
	var partners []model.Partner
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Partner{}).
		Where("is_active = ?", true).
		Where("type IN ?", []string{model.PartnerTypeSupplier, model.PartnerTypeBoth})
	if keyword != "" {
		like := "%" + escapeLike(strings.ToLower(keyword)) + "%"
		query = query.Where("LOWER(name) LIKE ? OR tax_code LIKE ? OR phone LIKE ?", like, like, like)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("name asc").Offset(offset).Limit(limit).Find(&partners).Error; err != nil {
		return nil, 0, err
	}
	return partners, total, nil
}
