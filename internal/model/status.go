package model

import (
	"database/sql/driver"
	"fmt"

	"warehouse/pkg/textnorm"
)

// InvoiceKind enum constants
type InvoiceKind string

const (
	KindImport       InvoiceKind = "IMPORT"
	KindExport       InvoiceKind = "EXPORT"
	KindReturnImport InvoiceKind = "RETURN_IMPORT"
)

// Valid reports whether k is one of the known kinds
func (k InvoiceKind) Valid() bool {
	switch k {
	case KindImport, KindExport, KindReturnImport:
		return true
	}
	return false
}

// CodePrefix is the human-readable code prefix per kind (nhập kho, xuất kho, trả hàng).
func (k InvoiceKind) CodePrefix() string {
	switch k {
	case KindExport:
		return "XK"
	case KindReturnImport:
		return "TH"
	default:
		return "NK"
	}
}

// ParseKind accepts the canonical names plus the lowercase slugs list pages use.
func ParseKind(raw string) (InvoiceKind, bool) {
	switch textnorm.Fold(raw) {
	case "import", "nhap", "nhap kho":
		return KindImport, true
	case "export", "xuat", "xuat kho":
		return KindExport, true
	case "return_import", "return", "tra hang", "tra hang nhap":
		return KindReturnImport, true
	}
	return "", false
}

// AxisStatus is the value of one status axis (movement or payment).
type AxisStatus string

const (
	AxisPending AxisStatus = "PENDING"
	AxisDone    AxisStatus = "DONE"
)

// OverallStatus is derived from the two axes, never set directly.
type OverallStatus string

const (
	StatusProcessing OverallStatus = "PROCESSING"
	StatusComplete   OverallStatus = "COMPLETE"
)

// PaymentMethod enum constants. UNDEFINED is the unset sentinel.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "CASH"
	PaymentBanking   PaymentMethod = "BANKING"
	PaymentUndefined PaymentMethod = "UNDEFINED"
)

// Legacy rows and older API clients stored free-form labels in the status
// columns. Everything is folded to one of the canonical values here so nothing
// above the persistence layer ever compares raw strings.
var axisAliases = map[string]AxisStatus{
	"done":            AxisDone,
	"completed":       AxisDone,
	"complete":        AxisDone,
	"paid":            AxisDone,
	"imported":        AxisDone,
	"exported":        AxisDone,
	"returned":        AxisDone,
	"true":            AxisDone,
	"1":               AxisDone,
	"da nhap kho":     AxisDone,
	"da xuat kho":     AxisDone,
	"da tra hang":     AxisDone,
	"da thanh toan":   AxisDone,
	"hoan thanh":      AxisDone,
	"pending":         AxisPending,
	"processing":      AxisPending,
	"unpaid":          AxisPending,
	"not_imported":    AxisPending,
	"not_exported":    AxisPending,
	"not_returned":    AxisPending,
	"false":           AxisPending,
	"0":               AxisPending,
	"chua nhap kho":   AxisPending,
	"chua xuat kho":   AxisPending,
	"chua tra hang":   AxisPending,
	"chua thanh toan": AxisPending,
	"dang xu ly":      AxisPending,
}

var overallAliases = map[string]OverallStatus{
	"complete":   StatusComplete,
	"completed":  StatusComplete,
	"done":       StatusComplete,
	"hoan thanh": StatusComplete,
	"processing": StatusProcessing,
	"pending":    StatusProcessing,
	"dang xu ly": StatusProcessing,
}

var methodAliases = map[string]PaymentMethod{
	"cash":         PaymentCash,
	"tien mat":     PaymentCash,
	"banking":      PaymentBanking,
	"bank":         PaymentBanking,
	"transfer":     PaymentBanking,
	"chuyen khoan": PaymentBanking,
	"undefined":    PaymentUndefined,
	"":             PaymentUndefined,
}

// NormalizeAxis maps any known backend variant to the canonical axis value.
func NormalizeAxis(raw string) (AxisStatus, error) {
	if s, ok := axisAliases[textnorm.Fold(raw)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown axis status %q", raw)
}

// NormalizeOverall maps any known backend variant to the canonical overall status.
func NormalizeOverall(raw string) (OverallStatus, error) {
	if s, ok := overallAliases[textnorm.Fold(raw)]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown overall status %q", raw)
}

// NormalizePaymentMethod maps known variants, anything else is UNDEFINED.
func NormalizePaymentMethod(raw string) PaymentMethod {
	if m, ok := methodAliases[textnorm.Fold(raw)]; ok {
		return m
	}
	return PaymentUndefined
}

// Scan implements the sql.Scanner interface
func (s *AxisStatus) Scan(value interface{}) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	if raw == "" {
		*s = AxisPending
		return nil
	}
	parsed, err := NormalizeAxis(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (s AxisStatus) Value() (driver.Value, error) {
	if s == "" {
		return string(AxisPending), nil
	}
	return string(s), nil
}

// Scan implements the sql.Scanner interface
func (s *OverallStatus) Scan(value interface{}) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	if raw == "" {
		*s = StatusProcessing
		return nil
	}
	parsed, err := NormalizeOverall(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements the driver.Valuer interface
func (s OverallStatus) Value() (driver.Value, error) {
	if s == "" {
		return string(StatusProcessing), nil
	}
	return string(s), nil
}

// Scan implements the sql.Scanner interface
func (m *PaymentMethod) Scan(value interface{}) error {
	raw, err := scanString(value)
	if err != nil {
		return err
	}
	*m = NormalizePaymentMethod(raw)
	return nil
}

// Value implements the driver.Valuer interface
func (m PaymentMethod) Value() (driver.Value, error) {
	if m == "" {
		return string(PaymentUndefined), nil
	}
	return string(m), nil
}

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to status", value)
	}
}
