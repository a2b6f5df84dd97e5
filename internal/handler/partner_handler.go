package handler

import (
	"net/http"

	"warehouse/internal/middleware"
	"warehouse/internal/model"
	"warehouse/internal/service"
	"warehouse/pkg/pagination"
	"warehouse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PartnerHandler struct {
	partnerService service.PartnerService
	logger         logrus.FieldLogger
}

func NewPartnerHandler(partnerService service.PartnerService, logger logrus.FieldLogger) *PartnerHandler {
	return &PartnerHandler{partnerService: partnerService, logger: logger}
}

func (h *PartnerHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/suppliers", middleware.RequirePermission(model.PermInvoicesRead), h.ListSuppliers)
}

// ListSuppliers returns active suppliers for the invoice form
// @Summary      List suppliers
// @Tags         partners
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default: 1)"
// @Param        limit   query     int     false  "Items per page (default: 10)"
// @Param        search  query     string  false  "Search by name, tax code or phone"
// @Success      200     {object}  response.Response
// @Router       /api/suppliers [get]
func (h *PartnerHandler) ListSuppliers(c *gin.Context) {
	page := pagination.Parse(c, pagination.MaxPageSize)

	suppliers, total, err := h.partnerService.SearchSuppliers(c.Request.Context(), c.Query("search"), page.Page, page.PageSize)
	if err != nil {
		h.logger.WithError(err).Error("supplier search failed")
		c.JSON(http.StatusServiceUnavailable, response.Retry(http.StatusServiceUnavailable, msgRetry))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"suppliers": suppliers,
		"total":     total,
		"page":      page.Page,
		"limit":     page.PageSize,
	}))
}
