package repository

import (
	"context"

	"warehouse/internal/model"

	"gorm.io/gorm"
)

type InventoryTxRepository interface {
	Create(ctx context.Context, tx *model.InventoryTransaction) error
	ListByInvoice(ctx context.Context, invoiceID uint) ([]model.InventoryTransaction, error)
}

type inventoryTxRepository struct {
	db *gorm.DB
}

func NewInventoryTxRepository(db *gorm.DB) InventoryTxRepository {
	return &inventoryTxRepository{db: db}
}

func (r *inventoryTxRepository) Create(ctx context.Context, tx *model.InventoryTransaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *inventoryTxRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]model.InventoryTransaction, error) {
	var rows []model.InventoryTransaction
	if err := GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
