package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"warehouse/internal/repository"
	"warehouse/pkg/pagination"
)

type ProductResponse struct {
	ID           string `json:"id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	CurrentStock int    `json:"current_stock"`
}

// StockMovementResponse is one stock card line written by a movement confirmation
type StockMovementResponse struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	InvoiceCode     string `json:"invoice_code"`
	TransactionType string `json:"transaction_type"`
	QuantityChanged int    `json:"quantity_changed"`
	StockAfter      int    `json:"stock_after"`
	CreatedAt       string `json:"created_at"`
}

// InventoryService serves the product picker of the invoice form and the
// stock card of an invoice. Stock itself only changes through ConfirmMovement.
type InventoryService interface {
	SearchProducts(ctx context.Context, keyword string, page, limit int) ([]ProductResponse, int64, error)
	ListStockMovements(ctx context.Context, invoiceID uint) ([]StockMovementResponse, error)
}

type inventoryService struct {
	productRepo repository.ProductRepository
	invTxRepo   repository.InventoryTxRepository
	invoiceRepo repository.InvoiceRepository
}

func NewInventoryService(
	productRepo repository.ProductRepository,
	invTxRepo repository.InventoryTxRepository,
	invoiceRepo repository.InvoiceRepository,
) InventoryService {
	return &inventoryService{
		productRepo: productRepo,
		invTxRepo:   invTxRepo,
		invoiceRepo: invoiceRepo,
	}
}

func (s *inventoryService) SearchProducts(ctx context.Context, keyword string, page, limit int) ([]ProductResponse, int64, error) {
	p := pagination.New(page, limit, pagination.MaxPageSize)

	products, total, err := s.productRepo.Search(ctx, strings.TrimSpace(keyword), p.Offset, p.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}

	res := make([]ProductResponse, 0, len(products))
	for _, prod := range products {
		res = append(res, ProductResponse{
			ID:           prod.ID.String(),
			SKU:          prod.SKU,
			Name:         prod.Name,
			CurrentStock: prod.CurrentStock,
		})
	}
	return res, total, nil
}

func (s *inventoryService) ListStockMovements(ctx context.Context, invoiceID uint) ([]StockMovementResponse, error) {
	if _, err := s.invoiceRepo.FindByID(ctx, invoiceID); err != nil {
		if IsNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}

	rows, err := s.invTxRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}

	res := make([]StockMovementResponse, 0, len(rows))
	for _, r := range rows {
		res = append(res, StockMovementResponse{
			ID:              r.ID.String(),
			ProductID:       r.ProductID.String(),
			InvoiceCode:     r.InvoiceCode,
			TransactionType: r.TransactionType,
			QuantityChanged: r.QuantityChanged,
			StockAfter:      r.StockAfter,
			CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, nil
}
