package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents an item in the warehouse
type Product struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SKU          string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"sku"`
	Name         string         `gorm:"type:varchar(255);not null" json:"name"`
	CurrentStock int            `gorm:"type:int;default:0;not null" json:"current_stock"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TransactionType Enum Simulation
const (
	TxTypeIn  = "IN"
	TxTypeOut = "OUT"
)

// InventoryTransaction (thẻ kho) records one stock change caused by a confirmed movement
type InventoryTransaction struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID       uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	InvoiceID       uint      `gorm:"not null;index" json:"invoice_id"`
	InvoiceCode     string    `gorm:"type:varchar(30);not null" json:"invoice_code"`
	TransactionType string    `gorm:"type:varchar(10);not null" json:"transaction_type"` // IN, OUT
	QuantityChanged int       `gorm:"type:int;not null" json:"quantity_changed"`
	StockAfter      int       `gorm:"type:int;not null" json:"stock_after"`
	CreatedAt       time.Time `json:"created_at"`
}

// StockDirection returns the ledger type and sign applied when goods of this kind move.
func StockDirection(kind InvoiceKind) (string, int) {
	if kind == KindImport {
		return TxTypeIn, 1
	}
	return TxTypeOut, -1
}
