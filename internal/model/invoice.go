package model

import (
	"time"

	"warehouse/pkg/textnorm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxMoney is the largest value a decimal(18,4) money column holds.
var MaxMoney = decimal.RequireFromString("99999999999999.9999")

// Invoice is one warehouse document (phiếu nhập, phiếu xuất, phiếu trả hàng).
// It carries two independent axes: goods movement and payment. Status is
// derived from them through CompletionPolicy and is never written on its own.
type Invoice struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code             string          `gorm:"type:varchar(30);uniqueIndex;not null;<-:create" json:"code"`
	Kind             InvoiceKind     `gorm:"type:varchar(20);not null;index:idx_invoice_kind_created,priority:1;<-:create" json:"kind"`
	MovementStatus   AxisStatus      `gorm:"type:varchar(30);not null;default:'PENDING';index" json:"movement_status"`
	PaymentStatus    AxisStatus      `gorm:"type:varchar(30);not null;default:'PENDING';index" json:"payment_status"`
	Status           OverallStatus   `gorm:"type:varchar(30);not null;default:'PROCESSING';index" json:"status"`
	PaymentMethod    PaymentMethod   `gorm:"type:varchar(20);not null;default:'UNDEFINED'" json:"payment_method"`
	PaymentReference string          `gorm:"type:varchar(100)" json:"payment_reference"`
	SupplierID       uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"supplier_id"`
	SupplierName     string          `gorm:"type:varchar(255);not null;<-:create" json:"supplier_name"`
	StaffID          uuid.UUID       `gorm:"type:uuid;not null;index;<-:create" json:"staff_id"`
	StaffName        string          `gorm:"type:varchar(255);<-:create" json:"staff_name"`
	StaffImage       string          `gorm:"type:text;<-:create" json:"staff_image"`
	ReturnOfID       *uint           `gorm:"index;<-:create" json:"return_of_id"` // RETURN_IMPORT only: the IMPORT being returned
	ReturnOfCode     string          `gorm:"type:varchar(30);<-:create" json:"return_of_code"`
	Items            []InvoiceItem   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:RESTRICT" json:"items"`
	TotalQuantity    int             `gorm:"type:int;not null;default:0" json:"total_quantity"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"paid_amount"`
	Note             string          `gorm:"type:text" json:"note"`
	SearchText       string          `gorm:"type:text;index" json:"-"` // folded code + supplier + staff
	MovedAt          *time.Time      `json:"moved_at"`
	PaidAt           *time.Time      `json:"paid_at"`
	CreatedAt        time.Time       `gorm:"index:idx_invoice_kind_created,priority:2;<-:create" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InvoiceItem is one line of an invoice. Amount is always Quantity × UnitPrice.
type InvoiceItem struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID   uint            `gorm:"not null;index" json:"invoice_id"`
	LineNo      int             `gorm:"type:int;not null" json:"line_no"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	ProductSKU  string          `gorm:"type:varchar(100)" json:"product_sku"`
	ProductName string          `gorm:"type:varchar(255)" json:"product_name"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
}

// InvoicePayment records one accepted payment confirmation.
type InvoicePayment struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID     uint            `gorm:"not null;index" json:"invoice_id"`
	Method        PaymentMethod   `gorm:"type:varchar(20);not null" json:"method"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	ReferenceCode string          `gorm:"type:varchar(100)" json:"reference_code"`
	StaffID       *uuid.UUID      `gorm:"type:uuid" json:"staff_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Recalculate recomputes every line amount and the invoice totals from the
// line items. Totals are never edited any other way.
func (inv *Invoice) Recalculate() {
	qty := 0
	total := decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		item.LineNo = i + 1
		item.Amount = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		qty += item.Quantity
		total = total.Add(item.Amount)
	}
	inv.TotalQuantity = qty
	inv.TotalAmount = total
}

// Reconciled reports whether the stored totals match the line items.
func (inv *Invoice) Reconciled() bool {
	qty := 0
	total := decimal.Zero
	for _, item := range inv.Items {
		if !item.Amount.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			return false
		}
		qty += item.Quantity
		total = total.Add(item.Amount)
	}
	return qty == inv.TotalQuantity && total.Equal(inv.TotalAmount)
}

// Outstanding is what is still owed, never negative.
func (inv *Invoice) Outstanding() decimal.Decimal {
	rest := inv.TotalAmount.Sub(inv.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// QuantitiesByProduct sums line quantities per product.
func (inv *Invoice) QuantitiesByProduct() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(inv.Items))
	for _, item := range inv.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

// BeforeSave keeps the keyword index in sync with the searchable fields.
func (inv *Invoice) BeforeSave(tx *gorm.DB) error {
	inv.SearchText = inv.BuildSearchText()
	return nil
}

// BuildSearchText folds the fields the list keyword matches against.
func (inv *Invoice) BuildSearchText() string {
	return textnorm.Join(inv.Code, inv.SupplierName, inv.StaffName)
}
