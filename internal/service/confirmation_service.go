package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"warehouse/internal/cache"
	"warehouse/internal/model"
	"warehouse/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Locker grants an exclusive, non-blocking lock per key.
type Locker interface {
	Obtain(ctx context.Context, key string) (func(), error)
}

type ConfirmPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
	PaidAmount    string `json:"paid_amount"`
	ReferenceCode string `json:"reference_code"`
}

// paymentInput is the validated form of ConfirmPaymentRequest.
type paymentInput struct {
	Method    string `json:"method" validate:"required,oneof=CASH BANKING"`
	Amount    string `json:"amount" validate:"required,decimal_gt0,decimal_max"`
	Reference string `json:"reference" validate:"required_if=Method BANKING,max=100"`
}

// StatusChangedEvent is pushed to websocket clients after a confirmation commits.
type StatusChangedEvent struct {
	InvoiceID      uint                `json:"invoice_id"`
	Code           string              `json:"code"`
	Kind           model.InvoiceKind   `json:"kind"`
	Action         string              `json:"action"`
	MovementStatus model.AxisStatus    `json:"movement_status"`
	PaymentStatus  model.AxisStatus    `json:"payment_status"`
	Status         model.OverallStatus `json:"status"`
}

type ConfirmationService interface {
	ConfirmMovement(ctx context.Context, invoiceID uint, staffID uuid.UUID) (InvoiceResponse, error)
	ConfirmPayment(ctx context.Context, invoiceID uint, staffID uuid.UUID, req ConfirmPaymentRequest) (InvoiceResponse, error)
}

type confirmationService struct {
	invoiceRepo repository.InvoiceRepository
	productRepo repository.ProductRepository
	invTxRepo   repository.InventoryTxRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	cache       InvoiceCache
	locker      Locker
	events      EventPublisher
	policy      model.CompletionPolicy
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewConfirmationService(
	invoiceRepo repository.InvoiceRepository,
	productRepo repository.ProductRepository,
	invTxRepo repository.InventoryTxRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	cache InvoiceCache,
	locker Locker,
	events EventPublisher,
	policy model.CompletionPolicy,
	logger logrus.FieldLogger,
) ConfirmationService {
	return &confirmationService{
		invoiceRepo: invoiceRepo,
		productRepo: productRepo,
		invTxRepo:   invTxRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		cache:       cache,
		locker:      locker,
		events:      events,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
	}
}

// ValidatePayment checks every field and reports all failures at once.
// It performs no I/O.
func ValidatePayment(req ConfirmPaymentRequest) (model.PaymentMethod, decimal.Decimal, error) {
	method := model.NormalizePaymentMethod(req.PaymentMethod)
	in := paymentInput{
		Amount:    strings.TrimSpace(req.PaidAmount),
		Reference: strings.TrimSpace(req.ReferenceCode),
	}
	if method != model.PaymentUndefined {
		in.Method = string(method)
	}

	if err := validate.Struct(in); err != nil {
		return "", decimal.Zero, translateValidation(err)
	}
	return method, decimal.RequireFromString(in.Amount), nil
}

func (s *confirmationService) ConfirmMovement(ctx context.Context, invoiceID uint, staffID uuid.UUID) (InvoiceResponse, error) {
	release, err := s.lock(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	defer release()

	var updated *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.loadForUpdate(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.MovementStatus == model.AxisDone {
			return ErrAlreadyMoved
		}

		if err := s.applyStock(txCtx, inv); err != nil {
			return err
		}

		now := s.now()
		inv.MovementStatus = model.AxisDone
		inv.MovedAt = &now
		inv.UpdatedAt = now
		s.policy.ApplyStatus(inv)

		if err := s.invoiceRepo.UpdateStatus(txCtx, inv); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"kind":           inv.Kind,
			"total_quantity": inv.TotalQuantity,
			"status":         inv.Status,
		})
		if err := s.audit(txCtx, staffID, model.ActionConfirmMovement, inv, details); err != nil {
			return err
		}

		updated = inv
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.afterCommit(ctx, updated, model.ActionConfirmMovement)
	return s.reload(ctx, invoiceID)
}

func (s *confirmationService) ConfirmPayment(ctx context.Context, invoiceID uint, staffID uuid.UUID, req ConfirmPaymentRequest) (InvoiceResponse, error) {
	method, amount, err := ValidatePayment(req)
	if err != nil {
		return InvoiceResponse{}, err
	}
	reference := strings.TrimSpace(req.ReferenceCode)

	release, err := s.lock(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	defer release()

	var updated *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.loadForUpdate(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.PaymentStatus == model.AxisDone {
			return ErrAlreadySettled
		}

		if inv.PaidAmount.Add(amount).GreaterThan(model.MaxMoney) {
			return &ValidationError{Fields: map[string]string{FieldAmount: "Số tiền thanh toán vượt quá giới hạn cho phép"}}
		}

		now := s.now()
		if amount.GreaterThan(inv.Outstanding()) {
			s.logger.WithFields(logrus.Fields{
				"invoice_id":  inv.ID,
				"amount":      amount.StringFixed(4),
				"outstanding": inv.Outstanding().StringFixed(4),
			}).Warn("payment exceeds outstanding amount")
		}
		inv.PaidAmount = inv.PaidAmount.Add(amount)
		inv.PaymentMethod = method
		inv.PaymentReference = reference
		inv.PaidAt = &now
		// settled only once the payments cover the total
		if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
			inv.PaymentStatus = model.AxisDone
		}
		inv.UpdatedAt = now
		s.policy.ApplyStatus(inv)

		if err := s.invoiceRepo.UpdateStatus(txCtx, inv); err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		payment := model.InvoicePayment{
			InvoiceID:     inv.ID,
			Method:        method,
			Amount:        amount,
			ReferenceCode: reference,
			StaffID:       &staffID,
			CreatedAt:     now,
		}
		if err := s.invoiceRepo.CreatePayment(txCtx, &payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     method,
			"amount":     amount.StringFixed(4),
			"reference":  reference,
			"settlement": settlementOf(*inv),
			"status":     inv.Status,
		})
		if err := s.audit(txCtx, staffID, model.ActionConfirmPayment, inv, details); err != nil {
			return err
		}

		updated = inv
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.afterCommit(ctx, updated, model.ActionConfirmPayment)
	return s.reload(ctx, invoiceID)
}

func (s *confirmationService) lock(ctx context.Context, invoiceID uint) (func(), error) {
	release, err := s.locker.Obtain(ctx, fmt.Sprintf("lock:invoice:%d", invoiceID))
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, ErrConfirmationInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
	}
	return release, nil
}

func (s *confirmationService) loadForUpdate(ctx context.Context, invoiceID uint) (*model.Invoice, error) {
	inv, err := s.invoiceRepo.FindByIDForUpdate(ctx, invoiceID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}
	return inv, nil
}

// applyStock moves goods for every product on the invoice and writes one
// ledger row per product. Products are locked in id order so two confirmations
// touching the same products cannot deadlock.
func (s *confirmationService) applyStock(ctx context.Context, inv *model.Invoice) error {
	txType, sign := model.StockDirection(inv.Kind)
	quantities := inv.QuantitiesByProduct()

	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		qty := quantities[id]
		product, err := s.productRepo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return newGeneralError("Sản phẩm trên phiếu không còn tồn tại")
			}
			return fmt.Errorf("failed to lock product %s: %w", id, err)
		}

		newStock := product.CurrentStock + sign*qty
		if newStock < 0 {
			return newGeneralError(fmt.Sprintf("Sản phẩm %s không đủ tồn kho (còn %d, cần %d)", product.Name, product.CurrentStock, qty))
		}
		if err := s.productRepo.UpdateStock(ctx, id, newStock); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}

		entry := model.InventoryTransaction{
			ProductID:       id,
			InvoiceID:       inv.ID,
			InvoiceCode:     inv.Code,
			TransactionType: txType,
			QuantityChanged: qty,
			StockAfter:      newStock,
		}
		if err := s.invTxRepo.Create(ctx, &entry); err != nil {
			return fmt.Errorf("failed to write inventory transaction: %w", err)
		}
	}
	return nil
}

func (s *confirmationService) audit(ctx context.Context, staffID uuid.UUID, action string, inv *model.Invoice, details []byte) error {
	entry := model.AuditLog{
		UserID:     &staffID,
		Action:     action,
		EntityType: model.EntityInvoice,
		EntityID:   fmt.Sprint(inv.ID),
		EntityName: inv.Code,
		Details:    string(details),
	}
	if err := s.auditRepo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// afterCommit runs only once the transaction is durable. Failures here are
// logged, never returned: the confirmation itself already succeeded.
func (s *confirmationService) afterCommit(ctx context.Context, inv *model.Invoice, action string) {
	log := s.logger.WithFields(logrus.Fields{
		"invoice_id": inv.ID,
		"code":       inv.Code,
		"action":     action,
		"status":     inv.Status,
	})

	if err := s.cache.Invalidate(ctx, inv.ID); err != nil {
		log.WithError(err).Warn("failed to invalidate invoice cache")
	}
	s.events.Publish(EventInvoiceStatusChanged, StatusChangedEvent{
		InvoiceID:      inv.ID,
		Code:           inv.Code,
		Kind:           inv.Kind,
		Action:         action,
		MovementStatus: inv.MovementStatus,
		PaymentStatus:  inv.PaymentStatus,
		Status:         inv.Status,
	})
	log.Info("invoice confirmed")
}

func (s *confirmationService) reload(ctx context.Context, invoiceID uint) (InvoiceResponse, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}
	return toInvoiceResponse(*inv), nil
}
