package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"warehouse/internal/middleware"
	"warehouse/internal/model"
	"warehouse/internal/service"
	"warehouse/pkg/pagination"
	"warehouse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	HeaderListSession = "X-List-Session"

	msgInvalidPayload = "Dữ liệu gửi lên không hợp lệ"
	msgInvalidFilter  = "Bộ lọc không hợp lệ"
	msgRetry          = "Hệ thống đang bận, vui lòng thử lại"
	msgNotFound       = "Không tìm thấy phiếu"
)

type InvoiceHandler struct {
	invoiceService      service.InvoiceService
	confirmationService service.ConfirmationService
	listingService      service.ListingService
	historyService      service.HistoryService
	maxPageSize         int
	logger              logrus.FieldLogger
}

func NewInvoiceHandler(
	invoiceService service.InvoiceService,
	confirmationService service.ConfirmationService,
	listingService service.ListingService,
	historyService service.HistoryService,
	maxPageSize int,
	logger logrus.FieldLogger,
) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:      invoiceService,
		confirmationService: confirmationService,
		listingService:      listingService,
		historyService:      historyService,
		maxPageSize:         maxPageSize,
		logger:              logger,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.POST("", middleware.RequirePermission(model.PermInvoicesWrite), h.CreateInvoice)
		invoices.GET("", middleware.RequirePermission(model.PermInvoicesRead), h.ListInvoices)
		invoices.GET("/summary", middleware.RequirePermission(model.PermInvoicesRead), h.SummarizeInvoices)
		invoices.GET("/code/:code", middleware.RequirePermission(model.PermInvoicesRead), h.GetInvoiceByCode)
		invoices.GET("/:id", middleware.RequirePermission(model.PermInvoicesRead), h.GetInvoice)
		invoices.GET("/:id/payments", middleware.RequirePermission(model.PermInvoicesRead), h.ListPayments)
		invoices.GET("/:id/history", middleware.RequirePermission(model.PermInvoicesRead), h.GetHistory)
		invoices.PUT("/:id/confirm-movement", middleware.RequirePermission(model.PermWarehouseConfirm), h.ConfirmMovement)
		invoices.PUT("/:id/confirm-payment", middleware.RequirePermission(model.PermPaymentsConfirm), h.ConfirmPayment)
	}
}

// CreateInvoice creates an import, export or return invoice
// @Summary      Create invoice
// @Description  Creates a warehouse invoice with its line items. Totals are computed server-side.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateInvoiceRequest  true  "Create Invoice Payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	staffID, ok := h.staffID(c)
	if !ok {
		return
	}

	var req service.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msgInvalidPayload))
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), staffID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns one page of invoices of a kind
// @Summary      List invoices
// @Description  Filters by keyword (code, supplier, staff; accent-insensitive), status axes, overall status and creation date. A failed query still answers 200 with failed=true.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        kind             query     string  true   "IMPORT, EXPORT or RETURN_IMPORT"
// @Param        keyword          query     string  false  "Keyword"
// @Param        movement_status  query     string  false  "PENDING or DONE"
// @Param        payment_status   query     string  false  "PENDING or DONE"
// @Param        status           query     string  false  "PROCESSING or COMPLETE"
// @Param        date_from        query     string  false  "YYYY-MM-DD, inclusive"
// @Param        date_to          query     string  false  "YYYY-MM-DD, inclusive"
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        page_size        query     int     false  "Items per page (default 10)"
// @Param        X-List-Session   header    string  false  "List session key, a newer request supersedes older ones"
// @Success      200              {object}  response.Response{data=service.ListResult}
// @Failure      422              {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	filter, fieldErrs := h.parseListFilter(c)
	if fieldErrs != nil {
		c.JSON(http.StatusUnprocessableEntity, response.FieldErrors(http.StatusUnprocessableEntity, msgInvalidFilter, fieldErrs))
		return
	}

	session := c.GetHeader(HeaderListSession)
	if session == "" {
		session = c.Query("session")
	}

	result := h.listingService.ListInvoices(c.Request.Context(), session, filter)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SummarizeInvoices returns chip counts for list tabs
// @Summary      Invoice counts per status
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        kind     query     string  true   "IMPORT, EXPORT or RETURN_IMPORT"
// @Param        keyword  query     string  false  "Keyword"
// @Success      200      {object}  response.Response{data=repository.InvoiceSummary}
// @Failure      422      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/invoices/summary [get]
func (h *InvoiceHandler) SummarizeInvoices(c *gin.Context) {
	kind, ok := model.ParseKind(c.Query("kind"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, response.FieldErrors(http.StatusUnprocessableEntity, msgInvalidFilter,
			map[string]string{"kind": "Loại phiếu không hợp lệ"}))
		return
	}

	summary, err := h.listingService.SummarizeInvoices(c.Request.Context(), kind, c.Query("keyword"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// GetInvoice returns invoice detail
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// GetInvoiceByCode returns invoice detail looked up by its code
// @Summary      Get invoice by code
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        code  path      string  true  "Invoice code, e.g. NK00012"
// @Success      200   {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/invoices/code/{code} [get]
func (h *InvoiceHandler) GetInvoiceByCode(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoiceByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// ListPayments returns the accepted payments of an invoice
// @Summary      List invoice payments
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=[]service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/payments [get]
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}

	payments, err := h.invoiceService.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payments))
}

// GetHistory returns the audit trail of an invoice
// @Summary      Invoice history
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      int  true   "Invoice ID"
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 10)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      404    {object}  response.Response
// @Router       /api/invoices/{id}/history [get]
func (h *InvoiceHandler) GetHistory(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	page := pagination.Parse(c, h.maxPageSize)

	logs, total, err := h.historyService.GetHistory(c.Request.Context(), id, page.Page, page.PageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"page":  page.Page,
		"limit": page.PageSize,
	}))
}

// ConfirmMovement marks the goods of an invoice as moved and updates stock
// @Summary      Confirm goods movement
// @Description  Confirms import/export/return of goods. Rejected when already confirmed or stock is insufficient.
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /api/invoices/{id}/confirm-movement [put]
func (h *InvoiceHandler) ConfirmMovement(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	staffID, ok := h.staffID(c)
	if !ok {
		return
	}

	invoice, err := h.confirmationService.ConfirmMovement(c.Request.Context(), id, staffID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// ConfirmPayment records the payment of an invoice
// @Summary      Confirm payment
// @Description  Records a CASH or BANKING payment. BANKING requires a reference code.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                            true  "Invoice ID"
// @Param        payload  body      service.ConfirmPaymentRequest  true  "Payment"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/invoices/{id}/confirm-payment [put]
func (h *InvoiceHandler) ConfirmPayment(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	staffID, ok := h.staffID(c)
	if !ok {
		return
	}

	var req service.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msgInvalidPayload))
		return
	}

	invoice, err := h.confirmationService.ConfirmPayment(c.Request.Context(), id, staffID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// parseInvoiceID answers 404 itself when the path id is not a positive integer
func parseInvoiceID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, msgNotFound))
		return 0, false
	}
	return uint(id), true
}

// staffID reads the authenticated user id set by RequirePermission
func (h *InvoiceHandler) staffID(c *gin.Context) (uuid.UUID, bool) {
	raw, _ := c.Get("userID")
	str, _ := raw.(string)
	id, err := uuid.Parse(str)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user in token"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *InvoiceHandler) parseListFilter(c *gin.Context) (service.ListFilter, map[string]string) {
	errs := map[string]string{}
	page := pagination.Parse(c, h.maxPageSize)
	filter := service.ListFilter{
		Keyword:  c.Query("keyword"),
		Page:     page.Page,
		PageSize: page.PageSize,
	}

	if kind, ok := model.ParseKind(c.Query("kind")); ok {
		filter.Kind = kind
	} else {
		errs["kind"] = "Loại phiếu không hợp lệ"
	}

	if raw := c.Query("movement_status"); raw != "" {
		if s, err := model.NormalizeAxis(raw); err == nil {
			filter.MovementStatus = &s
		} else {
			errs["movement_status"] = "Trạng thái nhập/xuất không hợp lệ"
		}
	}
	if raw := c.Query("payment_status"); raw != "" {
		if s, err := model.NormalizeAxis(raw); err == nil {
			filter.PaymentStatus = &s
		} else {
			errs["payment_status"] = "Trạng thái thanh toán không hợp lệ"
		}
	}
	if raw := c.Query("status"); raw != "" {
		if s, err := model.NormalizeOverall(raw); err == nil {
			filter.Status = &s
		} else {
			errs["status"] = "Trạng thái không hợp lệ"
		}
	}

	if raw := c.Query("date_from"); raw != "" {
		if t, err := parseDay(raw); err == nil {
			filter.DateFrom = &t
		} else {
			errs["date_from"] = "Ngày bắt đầu không hợp lệ"
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if t, err := parseDay(raw); err == nil {
			// inclusive day on the wire, exclusive bound below
			end := t.AddDate(0, 0, 1)
			filter.DateTo = &end
		} else {
			errs["date_to"] = "Ngày kết thúc không hợp lệ"
		}
	}
	if filter.DateFrom != nil && filter.DateTo != nil && !filter.DateFrom.Before(*filter.DateTo) {
		errs["date_to"] = "Ngày kết thúc phải sau ngày bắt đầu"
	}

	if len(errs) > 0 {
		return filter, errs
	}
	return filter, nil
}

func parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}

// writeError maps service errors onto the response envelope
func (h *InvoiceHandler) writeError(c *gin.Context, err error) {
	if v, ok := service.IsValidation(err); ok {
		c.JSON(http.StatusUnprocessableEntity, response.FieldErrors(http.StatusUnprocessableEntity, "Dữ liệu không hợp lệ", v.Fields))
		return
	}
	if service.IsNotFound(err) {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, msgNotFound))
		return
	}
	if service.IsConflict(err) {
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, conflictMessage(err)))
		return
	}

	_ = c.Error(err)
	h.logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"params": c.Params,
	}).Error("invoice request failed")
	c.JSON(http.StatusServiceUnavailable, response.Retry(http.StatusServiceUnavailable, msgRetry))
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrAlreadySettled):
		return "Phiếu đã được xác nhận thanh toán"
	case errors.Is(err, service.ErrAlreadyMoved):
		return "Phiếu đã được xác nhận nhập/xuất kho"
	case errors.Is(err, service.ErrConfirmationInFlight):
		return "Phiếu đang được xác nhận bởi người khác, vui lòng thử lại sau"
	}
	return err.Error()
}
