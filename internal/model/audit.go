package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntityInvoice = "INVOICE"

	ActionCreateInvoice   = "CREATE_INVOICE"
	ActionConfirmMovement = "CONFIRM_MOVEMENT"
	ActionConfirmPayment  = "CONFIRM_PAYMENT"
)

// AuditLog tracks who did what to which document and when
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(30);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index:idx_audit_entity,priority:2" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // invoice code
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
