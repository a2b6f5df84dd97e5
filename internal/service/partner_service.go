package service

import (
	"context"
	"fmt"
	"strings"

	"warehouse/internal/repository"
	"warehouse/pkg/pagination"
)

type SupplierResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	TaxCode string `json:"tax_code"`
	Phone   string `json:"phone"`
}

// PartnerService lists the partners an invoice may be issued against
type PartnerService interface {
	SearchSuppliers(ctx context.Context, keyword string, page, limit int) ([]SupplierResponse, int64, error)
}

type partnerService struct {
	partnerRepo repository.PartnerRepository
}

func NewPartnerService(partnerRepo repository.PartnerRepository) PartnerService {
	return &partnerService{partnerRepo: partnerRepo}
}

func (s *partnerService) SearchSuppliers(ctx context.Context, keyword string, page, limit int) ([]SupplierResponse, int64, error) {
	p := pagination.New(page, limit, pagination.MaxPageSize)

	partners, total, err := s.partnerRepo.SearchSuppliers(ctx, strings.TrimSpace(keyword), p.Offset, p.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("search suppliers: %w", err)
	}

	res := make([]SupplierResponse, 0, len(partners))
	for _, partner := range partners {
		res = append(res, SupplierResponse{
			ID:      partner.ID.String(),
			Name:    partner.Name,
			Type:    partner.Type,
			TaxCode: partner.TaxCode,
			Phone:   partner.Phone,
		})
	}
	return res, total, nil
}
