package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"warehouse/internal/model"
	"warehouse/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// InvoiceCache is the read-through detail cache. Invalidate is only called
// after a write has committed.
type InvoiceCache interface {
	Fetch(ctx context.Context, id uint, dest interface{}, loader func(context.Context) (interface{}, error)) error
	Invalidate(ctx context.Context, id uint) error
}

// EventPublisher pushes notifications to connected clients.
type EventPublisher interface {
	Publish(event string, payload interface{})
}

const EventInvoiceStatusChanged = "invoice.status_changed"

// --- DTOs ---

type CreateInvoiceItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	UnitPrice string `json:"unit_price" validate:"required,decimal_gte0,decimal_max"`
}

type CreateInvoiceRequest struct {
	Kind       string                     `json:"kind" validate:"required,invoice_kind"`
	SupplierID string                     `json:"supplier_id" validate:"required,uuid"`
	ReturnOfID *uint                      `json:"return_of_id"` // required for RETURN_IMPORT
	Note       string                     `json:"note" validate:"max=1000"`
	Items      []CreateInvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

type InvoiceItemResponse struct {
	LineNo      int    `json:"line_no"`
	ProductID   string `json:"product_id"`
	ProductSKU  string `json:"product_sku"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

type InvoiceResponse struct {
	ID               uint                  `json:"id"`
	Code             string                `json:"code"`
	Kind             model.InvoiceKind     `json:"kind"`
	MovementStatus   model.AxisStatus      `json:"movement_status"`
	PaymentStatus    model.AxisStatus      `json:"payment_status"`
	Status           model.OverallStatus   `json:"status"`
	StatusView       model.StatusView      `json:"status_view"`
	PaymentMethod    model.PaymentMethod   `json:"payment_method"`
	PaymentReference string                `json:"payment_reference,omitempty"`
	SupplierID       string                `json:"supplier_id"`
	SupplierName     string                `json:"supplier_name"`
	StaffID          string                `json:"staff_id"`
	StaffName        string                `json:"staff_name"`
	StaffImage       string                `json:"staff_image,omitempty"`
	ReturnOfID       *uint                 `json:"return_of_id,omitempty"`
	ReturnOfCode     string                `json:"return_of_code,omitempty"`
	Items            []InvoiceItemResponse `json:"items,omitempty"`
	TotalQuantity    int                   `json:"total_quantity"`
	TotalAmount      string                `json:"total_amount"`
	PaidAmount       string                `json:"paid_amount"`
	Outstanding      string                `json:"outstanding"`
	Settlement       string                `json:"settlement,omitempty"` // partial while money is owed, full once covered
	Note             string                `json:"note,omitempty"`
	MovedAt          *string               `json:"moved_at"`
	PaidAt           *string               `json:"paid_at"`
	CreatedAt        string                `json:"created_at"`
	UpdatedAt        string                `json:"updated_at"`
}

type PaymentResponse struct {
	ID            uint   `json:"id"`
	Method        string `json:"method"`
	Amount        string `json:"amount"`
	ReferenceCode string `json:"reference_code,omitempty"`
	StaffID       string `json:"staff_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

const (
	SettlementFull    = "full"
	SettlementPartial = "partial"
)

// --- Interface ---

type InvoiceService interface {
	CreateInvoice(ctx context.Context, staffID uuid.UUID, req CreateInvoiceRequest) (InvoiceResponse, error)
	GetInvoice(ctx context.Context, id uint) (InvoiceResponse, error)
	GetInvoiceByCode(ctx context.Context, code string) (InvoiceResponse, error)
	ListPayments(ctx context.Context, id uint) ([]PaymentResponse, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	productRepo repository.ProductRepository
	partnerRepo repository.PartnerRepository
	userRepo    repository.UserRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	cache       InvoiceCache
	logger      logrus.FieldLogger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	productRepo repository.ProductRepository,
	partnerRepo repository.PartnerRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	cache InvoiceCache,
	logger logrus.FieldLogger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		productRepo: productRepo,
		partnerRepo: partnerRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		cache:       cache,
		logger:      logger,
	}
}

// --- Implementation ---

func (s *invoiceService) CreateInvoice(ctx context.Context, staffID uuid.UUID, req CreateInvoiceRequest) (InvoiceResponse, error) {
	if err := validate.Struct(req); err != nil {
		return InvoiceResponse{}, translateValidation(err)
	}
	kind, _ := model.ParseKind(req.Kind)

	verr := &ValidationError{}
	if kind == model.KindReturnImport && req.ReturnOfID == nil {
		verr.Add("return_of_id", "Phiếu trả hàng phải tham chiếu một phiếu nhập")
	}
	if kind != model.KindReturnImport && req.ReturnOfID != nil {
		verr.Add("return_of_id", "Chỉ phiếu trả hàng mới tham chiếu phiếu nhập")
	}
	if err := verr.OrNil(); err != nil {
		return InvoiceResponse{}, err
	}

	supplierID := uuid.MustParse(req.SupplierID)
	items := make([]model.InvoiceItem, 0, len(req.Items))
	productIDs := make([]uuid.UUID, 0, len(req.Items))
	for _, it := range req.Items {
		pid := uuid.MustParse(it.ProductID)
		productIDs = append(productIDs, pid)
		items = append(items, model.InvoiceItem{
			ProductID: pid,
			Quantity:  it.Quantity,
			UnitPrice: decimal.RequireFromString(strings.TrimSpace(it.UnitPrice)),
		})
	}

	supplier, err := s.partnerRepo.FindByID(ctx, supplierID)
	if err != nil {
		if IsNotFound(err) {
			return InvoiceResponse{}, &ValidationError{Fields: map[string]string{"supplier_id": "Nhà cung cấp không tồn tại"}}
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load supplier: %w", err)
	}
	if !supplier.CanSupply() {
		return InvoiceResponse{}, &ValidationError{Fields: map[string]string{"supplier_id": "Đối tác không phải nhà cung cấp đang hoạt động"}}
	}

	staff, err := s.userRepo.GetByID(ctx, staffID)
	if err != nil {
		if IsNotFound(err) {
			return InvoiceResponse{}, newGeneralError("Không tìm thấy nhân viên thực hiện")
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load staff: %w", err)
	}

	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[uuid.UUID]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for i := range items {
		p, ok := byID[items[i].ProductID]
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "Sản phẩm không tồn tại")
			continue
		}
		items[i].ProductSKU = p.SKU
		items[i].ProductName = p.Name
	}
	if err := verr.OrNil(); err != nil {
		return InvoiceResponse{}, err
	}

	invoice := model.Invoice{
		Kind:           kind,
		MovementStatus: model.AxisPending,
		PaymentStatus:  model.AxisPending,
		Status:         model.StatusProcessing,
		PaymentMethod:  model.PaymentUndefined,
		SupplierID:     supplier.ID,
		SupplierName:   supplier.Name,
		StaffID:        staff.ID,
		StaffName:      staff.DisplayName(),
		StaffImage:     staff.Image,
		Items:          items,
		Note:           req.Note,
	}
	invoice.Recalculate()
	if invoice.TotalAmount.GreaterThan(model.MaxMoney) {
		return InvoiceResponse{}, &ValidationError{Fields: map[string]string{"items": "Tổng tiền phiếu vượt quá giới hạn cho phép"}}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if kind == model.KindReturnImport {
			if err := s.checkReturnQuantities(txCtx, &invoice, *req.ReturnOfID); err != nil {
				return err
			}
		}

		code, err := s.invoiceRepo.NextCode(txCtx, kind)
		if err != nil {
			return fmt.Errorf("failed to generate invoice code: %w", err)
		}
		invoice.Code = code

		if err := s.invoiceRepo.Create(txCtx, &invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"kind":   invoice.Kind,
			"total":  invoice.TotalAmount.StringFixed(4),
			"items":  len(invoice.Items),
			"return": invoice.ReturnOfCode,
		})
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     &staffID,
			Action:     model.ActionCreateInvoice,
			EntityType: model.EntityInvoice,
			EntityID:   fmt.Sprint(invoice.ID),
			EntityName: invoice.Code,
			Details:    string(details),
		})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": invoice.ID,
		"code":       invoice.Code,
		"kind":       invoice.Kind,
	}).Info("invoice created")

	reloaded, err := s.invoiceRepo.FindByID(ctx, invoice.ID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}
	return toInvoiceResponse(*reloaded), nil
}

// checkReturnQuantities enforces that a return never sends back more of a
// product than the referenced import brought in, net of earlier returns.
// The import row is locked so two concurrent returns are checked in turn.
func (s *invoiceService) checkReturnQuantities(ctx context.Context, inv *model.Invoice, importID uint) error {
	src, err := s.invoiceRepo.FindByIDForUpdate(ctx, importID)
	if err != nil {
		if IsNotFound(err) {
			return &ValidationError{Fields: map[string]string{"return_of_id": "Phiếu nhập tham chiếu không tồn tại"}}
		}
		return fmt.Errorf("failed to load referenced import: %w", err)
	}
	if src.Kind != model.KindImport {
		return &ValidationError{Fields: map[string]string{"return_of_id": "Chỉ có thể trả hàng cho phiếu nhập"}}
	}
	if src.SupplierID != inv.SupplierID {
		return &ValidationError{Fields: map[string]string{"supplier_id": "Nhà cung cấp phải trùng với phiếu nhập"}}
	}

	returned, err := s.invoiceRepo.ReturnedQuantities(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to load returned quantities: %w", err)
	}
	imported := src.QuantitiesByProduct()

	verr := &ValidationError{}
	requested := inv.QuantitiesByProduct()
	for i, item := range inv.Items {
		got, ok := imported[item.ProductID]
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "Sản phẩm không có trong phiếu nhập")
			continue
		}
		remaining := got - returned[item.ProductID]
		if requested[item.ProductID] > remaining {
			verr.Add(fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("Số lượng trả vượt quá số lượng còn lại của phiếu nhập (còn %d)", max(remaining, 0)))
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	inv.ReturnOfID = &src.ID
	inv.ReturnOfCode = src.Code
	return nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id uint) (InvoiceResponse, error) {
	var resp InvoiceResponse
	err := s.cache.Fetch(ctx, id, &resp, func(ctx context.Context) (interface{}, error) {
		inv, err := s.invoiceRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return toInvoiceResponse(*inv), nil
	})
	if err != nil {
		if IsNotFound(err) {
			return InvoiceResponse{}, ErrInvoiceNotFound
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load invoice %d: %w", id, err)
	}
	return resp, nil
}

func (s *invoiceService) GetInvoiceByCode(ctx context.Context, code string) (InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if IsNotFound(err) {
			return InvoiceResponse{}, ErrInvoiceNotFound
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load invoice %s: %w", code, err)
	}
	return toInvoiceResponse(*inv), nil
}

func (s *invoiceService) ListPayments(ctx context.Context, id uint) ([]PaymentResponse, error) {
	if _, err := s.invoiceRepo.FindByID(ctx, id); err != nil {
		if IsNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice %d: %w", id, err)
	}

	payments, err := s.invoiceRepo.ListPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	res := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		item := PaymentResponse{
			ID:            p.ID,
			Method:        string(p.Method),
			Amount:        p.Amount.StringFixed(4),
			ReferenceCode: p.ReferenceCode,
			CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		}
		if p.StaffID != nil {
			item.StaffID = p.StaffID.String()
		}
		res = append(res, item)
	}
	return res, nil
}

// --- Mapping ---

func settlementOf(inv model.Invoice) string {
	if !inv.PaidAmount.IsPositive() {
		return ""
	}
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		return SettlementFull
	}
	return SettlementPartial
}

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:               inv.ID,
		Code:             inv.Code,
		Kind:             inv.Kind,
		MovementStatus:   inv.MovementStatus,
		PaymentStatus:    inv.PaymentStatus,
		Status:           inv.Status,
		StatusView:       model.ResolveStatus(&inv),
		PaymentMethod:    inv.PaymentMethod,
		PaymentReference: inv.PaymentReference,
		SupplierID:       inv.SupplierID.String(),
		SupplierName:     inv.SupplierName,
		StaffID:          inv.StaffID.String(),
		StaffName:        inv.StaffName,
		StaffImage:       inv.StaffImage,
		ReturnOfID:       inv.ReturnOfID,
		ReturnOfCode:     inv.ReturnOfCode,
		TotalQuantity:    inv.TotalQuantity,
		TotalAmount:      inv.TotalAmount.StringFixed(4),
		PaidAmount:       inv.PaidAmount.StringFixed(4),
		Outstanding:      inv.Outstanding().StringFixed(4),
		Settlement:       settlementOf(inv),
		Note:             inv.Note,
		CreatedAt:        inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.Format(time.RFC3339),
	}

	if inv.MovedAt != nil {
		s := inv.MovedAt.Format(time.RFC3339)
		resp.MovedAt = &s
	}
	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}

	if len(inv.Items) > 0 {
		sorted := append([]model.InvoiceItem(nil), inv.Items...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LineNo < sorted[j].LineNo })
		resp.Items = make([]InvoiceItemResponse, 0, len(sorted))
		for _, item := range sorted {
			resp.Items = append(resp.Items, InvoiceItemResponse{
				LineNo:      item.LineNo,
				ProductID:   item.ProductID.String(),
				ProductSKU:  item.ProductSKU,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice.StringFixed(4),
				Amount:      item.Amount.StringFixed(4),
			})
		}
	}

	return resp
}
