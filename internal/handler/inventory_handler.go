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

type InventoryHandler struct {
	inventoryService service.InventoryService
	logger           logrus.FieldLogger
}

func NewInventoryHandler(inventoryService service.InventoryService, logger logrus.FieldLogger) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService, logger: logger}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	inventory := router.Group("/api")
	{
		inventory.GET("/products", middleware.RequirePermission(model.PermInvoicesRead), h.SearchProducts)
		inventory.GET("/invoices/:id/stock-movements", middleware.RequirePermission(model.PermInvoicesRead), h.ListStockMovements)
	}
}

// SearchProducts handles the product picker of the invoice form
// @Summary      Search products
// @Description  Retrieves a paginated list of products with current stock
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Search by SKU or name"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 10)"
// @Success      200     {object}  response.Response{data=object}
// @Failure      503     {object}  response.Response
// @Router       /api/products [get]
func (h *InventoryHandler) SearchProducts(c *gin.Context) {
	page := pagination.Parse(c, pagination.MaxPageSize)

	products, total, err := h.inventoryService.SearchProducts(c.Request.Context(), c.Query("search"), page.Page, page.PageSize)
	if err != nil {
		h.logger.WithError(err).Error("product search failed")
		c.JSON(http.StatusServiceUnavailable, response.Retry(http.StatusServiceUnavailable, msgRetry))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"products": products,
		"total":    total,
		"page":     page.Page,
		"limit":    page.PageSize,
	}))
}

// ListStockMovements returns the stock card lines written for an invoice
// @Summary      Invoice stock movements
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=[]service.StockMovementResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/stock-movements [get]
func (h *InventoryHandler) ListStockMovements(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	rows, err := h.inventoryService.ListStockMovements(c.Request.Context(), id)
	if err != nil {
		if service.IsNotFound(err) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, msgNotFound))
			return
		}
		h.logger.WithError(err).WithField("invoice_id", id).Error("stock movement lookup failed")
		c.JSON(http.StatusServiceUnavailable, response.Retry(http.StatusServiceUnavailable, msgRetry))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}
