package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerType enum constants
const (
	PartnerTypeCustomer = "CUSTOMER"
	PartnerTypeSupplier = "SUPPLIER"
	PartnerTypeBoth     = "BOTH"
)

// Partner is the counterparty of an invoice (nhà cung cấp). Invoices keep a
// name snapshot so later edits to the partner never rewrite old documents.
type Partner struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Type      string         `gorm:"type:varchar(20);not null;index" json:"type"` // CUSTOMER, SUPPLIER, BOTH
	TaxCode   string         `gorm:"type:varchar(50)" json:"tax_code"`
	Phone     string         `gorm:"type:varchar(50)" json:"phone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CanSupply reports whether the partner may appear on warehouse invoices
func (p *Partner) CanSupply() bool {
	return p.IsActive && (p.Type == PartnerTypeSupplier || p.Type == PartnerTypeBoth)
}
