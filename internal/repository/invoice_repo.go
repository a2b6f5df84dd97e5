package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warehouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCompoundAxisFilter is returned when a list query filters on both status
// axes at once. The index layout only supports one axis per query.
var ErrCompoundAxisFilter = errors.New("filtering on movement and payment status together is not supported")

// InvoiceQuery is the server-side list filter. Keyword must already be folded.
type InvoiceQuery struct {
	Kind           model.InvoiceKind
	Keyword        string
	MovementStatus *model.AxisStatus
	PaymentStatus  *model.AxisStatus
	Status         *model.OverallStatus
	DateFrom       *time.Time
	DateTo         *time.Time // exclusive
	Offset         int
	Limit          int
}

// InvoiceSummary holds chip counts for one kind.
type InvoiceSummary struct {
	All        int64 `json:"all"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Paid       int64 `json:"paid"`
	Unpaid     int64 `json:"unpaid"`
	Moved      int64 `json:"moved"`
	NotMoved   int64 `json:"not_moved"`
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uint) (*model.Invoice, error)
	FindByCode(ctx context.Context, code string) (*model.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.Invoice, error)
	UpdateStatus(ctx context.Context, invoice *model.Invoice) error
	CreatePayment(ctx context.Context, payment *model.InvoicePayment) error
	ListPayments(ctx context.Context, invoiceID uint) ([]model.InvoicePayment, error)
	List(ctx context.Context, q InvoiceQuery) ([]model.Invoice, int64, error)
	Summarize(ctx context.Context, kind model.InvoiceKind, keyword string) (InvoiceSummary, error)
	NextCode(ctx context.Context, kind model.InvoiceKind) (string, error)
	ReturnedQuantities(ctx context.Context, importID uint) (map[uuid.UUID]int, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("line_no asc")
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uint) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Items", preloadItems).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByCode(ctx context.Context, code string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Preload("Items", preloadItems).First(&invoice, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, err
	}
	if err := GetDB(ctx, r.db).Where("invoice_id = ?", id).Order("line_no asc").Find(&invoice.Items).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateStatus writes only the lifecycle columns. Code, kind and line items
// are immutable after creation.
func (r *invoiceRepository) UpdateStatus(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Model(invoice).
		Select("movement_status", "payment_status", "status", "payment_method", "payment_reference",
			"paid_amount", "moved_at", "paid_at", "updated_at").
		Updates(invoice).Error
}

func (r *invoiceRepository) CreatePayment(ctx context.Context, payment *model.InvoicePayment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *invoiceRepository) ListPayments(ctx context.Context, invoiceID uint) ([]model.InvoicePayment, error) {
	var payments []model.InvoicePayment
	if err := GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Order("created_at asc, id asc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *invoiceRepository) List(ctx context.Context, q InvoiceQuery) ([]model.Invoice, int64, error) {
	if q.MovementStatus != nil && q.PaymentStatus != nil {
		return nil, 0, ErrCompoundAxisFilter
	}

	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	filter := func(query *gorm.DB) *gorm.DB {
		query = query.Where("kind = ?", q.Kind)
		if q.Keyword != "" {
			query = query.Where("search_text LIKE ?", "%"+escapeLike(q.Keyword)+"%")
		}
		if q.MovementStatus != nil {
			query = query.Where("movement_status = ?", *q.MovementStatus)
		}
		if q.PaymentStatus != nil {
			query = query.Where("payment_status = ?", *q.PaymentStatus)
		}
		if q.Status != nil {
			query = query.Where("status = ?", *q.Status)
		}
		if q.DateFrom != nil {
			query = query.Where("created_at >= ?", *q.DateFrom)
		}
		if q.DateTo != nil {
			query = query.Where("created_at < ?", *q.DateTo)
		}
		return query
	}

	if err := db.Model(&model.Invoice{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetchQuery := db.Scopes(filter).Order("created_at desc, id desc").Offset(q.Offset)
	if q.Limit > 0 {
		fetchQuery = fetchQuery.Limit(q.Limit)
	}
	if err := fetchQuery.Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

func (r *invoiceRepository) Summarize(ctx context.Context, kind model.InvoiceKind, keyword string) (InvoiceSummary, error) {
	var summary InvoiceSummary

	query := GetDB(ctx, r.db).Model(&model.Invoice{}).Where("kind = ?", kind)
	if keyword != "" {
		query = query.Where("search_text LIKE ?", "%"+escapeLike(keyword)+"%")
	}
	err := query.Select(`COUNT(*) AS "all",
		COUNT(*) FILTER (WHERE status = ?) AS processing,
		COUNT(*) FILTER (WHERE status = ?) AS completed,
		COUNT(*) FILTER (WHERE payment_status = ?) AS paid,
		COUNT(*) FILTER (WHERE payment_status <> ?) AS unpaid,
		COUNT(*) FILTER (WHERE movement_status = ?) AS moved,
		COUNT(*) FILTER (WHERE movement_status <> ?) AS not_moved`,
		model.StatusProcessing, model.StatusComplete,
		model.AxisDone, model.AxisDone,
		model.AxisDone, model.AxisDone,
	).Scan(&summary).Error
	if err != nil {
		return InvoiceSummary{}, err
	}
	return summary, nil
}

// NextCode must run inside a transaction: the advisory lock is held until
// commit so two concurrent creations never read the same count.
func (r *invoiceRepository) NextCode(ctx context.Context, kind model.InvoiceKind) (string, error) {
	prefix := kind.CodePrefix()
	tx := GetDB(ctx, r.db)

	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "invoice_code:"+prefix).Error; err != nil {
		return "", err
	}

	var count int64
	if err := tx.Model(&model.Invoice{}).Where("kind = ?", kind).Count(&count).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

// ReturnedQuantities sums, per product, what has already been put on return
// invoices that reference the given import.
func (r *invoiceRepository) ReturnedQuantities(ctx context.Context, importID uint) (map[uuid.UUID]int, error) {
	var rows []struct {
		ProductID uuid.UUID
		Quantity  int
	}
	err := GetDB(ctx, r.db).Table("invoice_items").
		Select("invoice_items.product_id AS product_id, SUM(invoice_items.quantity) AS quantity").
		Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
		Where("invoices.return_of_id = ? AND invoices.kind = ?", importID, model.KindReturnImport).
		Group("invoice_items.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Quantity
	}
	return out, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
