package service

import (
	"context"
	"fmt"
	"time"

	"warehouse/internal/model"
	"warehouse/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type HistoryService interface {
	GetHistory(ctx context.Context, invoiceID uint, page, limit int) ([]AuditLogResponse, int64, error)
}

type historyService struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
}

// NewHistoryService creates a new HistoryService instance
func NewHistoryService(invoiceRepo repository.InvoiceRepository, auditRepo repository.AuditRepository) HistoryService {
	return &historyService{invoiceRepo: invoiceRepo, auditRepo: auditRepo}
}

// GetHistory returns the audit trail of one invoice, newest first
func (s *historyService) GetHistory(ctx context.Context, invoiceID uint, page, limit int) ([]AuditLogResponse, int64, error) {
	if _, err := s.invoiceRepo.FindByID(ctx, invoiceID); err != nil {
		if IsNotFound(err) {
			return nil, 0, ErrInvoiceNotFound
		}
		return nil, 0, fmt.Errorf("failed to load invoice %d: %w", invoiceID, err)
	}

	logs, total, err := s.auditRepo.ListByEntity(ctx, model.EntityInvoice, fmt.Sprint(invoiceID), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load history: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.DisplayName()
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.DateTime),
		})
	}

	return res, total, nil
}
