package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warehouse/internal/middleware"
	"warehouse/internal/model"
	"warehouse/internal/repository"
	"warehouse/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("handler-secret")
	staffUUID  = uuid.MustParse("7b0c1d2e-3f40-4a5b-8c6d-7e8f90a1b2c3")
)

type rolePerms map[string][]string

func (r rolePerms) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	return r[role], nil
}

type fakeInvoiceService struct {
	created  service.CreateInvoiceRequest
	staff    uuid.UUID
	getErr   error
	invoices map[uint]service.InvoiceResponse
}

func (f *fakeInvoiceService) CreateInvoice(_ context.Context, staffID uuid.UUID, req service.CreateInvoiceRequest) (service.InvoiceResponse, error) {
	f.created, f.staff = req, staffID
	if len(req.Items) == 0 {
		return service.InvoiceResponse{}, &service.ValidationError{Fields: map[string]string{"items": "Phiếu phải có ít nhất một sản phẩm"}}
	}
	return service.InvoiceResponse{ID: 1, Code: "NK00001", Kind: model.KindImport}, nil
}

func (f *fakeInvoiceService) GetInvoice(_ context.Context, id uint) (service.InvoiceResponse, error) {
	if f.getErr != nil {
		return service.InvoiceResponse{}, f.getErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return service.InvoiceResponse{}, service.ErrInvoiceNotFound
	}
	return inv, nil
}

func (f *fakeInvoiceService) GetInvoiceByCode(_ context.Context, code string) (service.InvoiceResponse, error) {
	for _, inv := range f.invoices {
		if inv.Code == code {
			return inv, nil
		}
	}
	return service.InvoiceResponse{}, service.ErrInvoiceNotFound
}

func (f *fakeInvoiceService) ListPayments(_ context.Context, id uint) ([]service.PaymentResponse, error) {
	if _, ok := f.invoices[id]; !ok {
		return nil, service.ErrInvoiceNotFound
	}
	return []service.PaymentResponse{{ID: 1, Method: "CASH", Amount: "100.0000"}}, nil
}

type fakeConfirmationService struct {
	err     error
	payment service.ConfirmPaymentRequest
	staff   uuid.UUID
}

func (f *fakeConfirmationService) ConfirmMovement(_ context.Context, id uint, staffID uuid.UUID) (service.InvoiceResponse, error) {
	f.staff = staffID
	if f.err != nil {
		return service.InvoiceResponse{}, f.err
	}
	return service.InvoiceResponse{ID: id, MovementStatus: model.AxisDone}, nil
}

func (f *fakeConfirmationService) ConfirmPayment(_ context.Context, id uint, staffID uuid.UUID, req service.ConfirmPaymentRequest) (service.InvoiceResponse, error) {
	f.staff, f.payment = staffID, req
	if f.err != nil {
		return service.InvoiceResponse{}, f.err
	}
	return service.InvoiceResponse{ID: id, PaymentStatus: model.AxisDone}, nil
}

type fakeListingService struct {
	filter  service.ListFilter
	session string
	result  service.ListResult
	sumErr  error
}

func (f *fakeListingService) ListInvoices(_ context.Context, session string, filter service.ListFilter) service.ListResult {
	f.session, f.filter = session, filter
	return f.result
}

func (f *fakeListingService) SummarizeInvoices(_ context.Context, kind model.InvoiceKind, _ string) (repository.InvoiceSummary, error) {
	if f.sumErr != nil {
		return repository.InvoiceSummary{}, f.sumErr
	}
	return repository.InvoiceSummary{All: 3, Completed: 1, Processing: 2}, nil
}

type fakeHistoryService struct{}

func (fakeHistoryService) GetHistory(_ context.Context, id uint, page, limit int) ([]service.AuditLogResponse, int64, error) {
	if id != 1 {
		return nil, 0, service.ErrInvoiceNotFound
	}
	return []service.AuditLogResponse{{Action: model.ActionCreateInvoice}}, 1, nil
}

type fixture struct {
	router   *gin.Engine
	invoices *fakeInvoiceService
	confirm  *fakeConfirmationService
	listing  *fakeListingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := logtest.NewNullLogger()

	middleware.InitPermissionMiddleware(rolePerms{
		"thu kho": {model.PermInvoicesRead, model.PermInvoicesWrite, model.PermWarehouseConfirm},
		"ke toan": {model.PermInvoicesRead, model.PermPaymentsConfirm},
	}, testSecret, logger)

	f := &fixture{
		invoices: &fakeInvoiceService{invoices: map[uint]service.InvoiceResponse{
			1: {ID: 1, Code: "NK00001", Kind: model.KindImport},
		}},
		confirm: &fakeConfirmationService{},
		listing: &fakeListingService{result: service.ListResult{Items: []service.InvoiceResponse{}, Page: 1, PageSize: 10}},
	}
	h := NewInvoiceHandler(f.invoices, f.confirm, f.listing, fakeHistoryService{}, 100, logger)

	f.router = gin.New()
	h.RegisterRoutes(&f.router.RouterGroup)
	return f
}

func token(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  staffUUID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

type envelope struct {
	Status     string            `json:"status"`
	StatusCode int               `json:"status_code"`
	Data       json.RawMessage   `json:"data"`
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields"`
	Retryable  bool              `json:"retryable"`
}

func (f *fixture) do(t *testing.T, method, path, role, body string, headers ...string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestCreateInvoice(t *testing.T) {
	f := newFixture(t)
	body := `{"kind":"IMPORT","supplier_id":"` + uuid.NewString() + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":2,"unit_price":"1000"}]}`

	code, env := f.do(t, http.MethodPost, "/api/invoices", "thu kho", body)
	assert.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(env.Data), `"code":"NK00001"`)
	assert.Equal(t, staffUUID, f.invoices.staff)
	assert.Equal(t, "IMPORT", f.invoices.created.Kind)
}

func TestCreateInvoiceErrors(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/invoices", "thu kho", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := f.do(t, http.MethodPost, "/api/invoices", "thu kho", `{"kind":"IMPORT","items":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Phiếu phải có ít nhất một sản phẩm", env.Fields["items"])

	code, _ = f.do(t, http.MethodPost, "/api/invoices", "ke toan", `{"kind":"IMPORT"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/api/invoices", "", `{"kind":"IMPORT"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestListInvoicesParsesFilter(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodGet,
		"/api/invoices?kind=xuat%20kho&keyword=Thep&movement_status=da%20xuat%20kho&payment_status=unpaid&date_from=2026-03-01&date_to=2026-03-31&page=2&page_size=20",
		"ke toan", "", HeaderListSession, "tab-7")
	require.Equal(t, http.StatusOK, code)

	got := f.listing.filter
	assert.Equal(t, "tab-7", f.listing.session)
	assert.Equal(t, model.KindExport, got.Kind)
	assert.Equal(t, "Thep", got.Keyword)
	require.NotNil(t, got.MovementStatus)
	assert.Equal(t, model.AxisDone, *got.MovementStatus)
	require.NotNil(t, got.PaymentStatus)
	assert.Equal(t, model.AxisPending, *got.PaymentStatus)
	assert.Nil(t, got.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *got.DateFrom)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *got.DateTo)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 20, got.PageSize)
}

func TestListInvoicesRejectsBadFilter(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/invoices?kind=transfer&status=archived&date_from=01/03/2026", "ke toan", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Fields, "kind")
	assert.Contains(t, env.Fields, "status")
	assert.Contains(t, env.Fields, "date_from")

	code, env = f.do(t, http.MethodGet, "/api/invoices?kind=IMPORT&date_from=2026-03-10&date_to=2026-03-01", "ke toan", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Fields, "date_to")
}

func TestListInvoicesFailedIsStill200(t *testing.T) {
	f := newFixture(t)
	f.listing.result = service.ListResult{Items: []service.InvoiceResponse{}, Failed: true, Error: "Không tải được danh sách phiếu, vui lòng thử lại"}

	code, env := f.do(t, http.MethodGet, "/api/invoices?kind=IMPORT", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)

	var res service.ListResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Failed)
	assert.NotEmpty(t, res.Error)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/invoices/summary?kind=IMPORT", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"completed":1`)

	f.listing.sumErr = errors.New("dial tcp: connection refused")
	code, env = f.do(t, http.MethodGet, "/api/invoices/summary?kind=IMPORT", "ke toan", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, env.Retryable)
}

func TestGetInvoiceRoutes(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/invoices/1", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"code":"NK00001"`)

	code, _ = f.do(t, http.MethodGet, "/api/invoices/code/NK00001", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodGet, "/api/invoices/99", "ke toan", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/invoices/abc", "ke toan", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = f.do(t, http.MethodGet, "/api/invoices/1/payments", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"CASH"`)

	code, env = f.do(t, http.MethodGet, "/api/invoices/1/history?page=1&limit=5", "ke toan", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), model.ActionCreateInvoice)

	f.invoices.getErr = errors.New("redis: i/o timeout")
	code, env = f.do(t, http.MethodGet, "/api/invoices/1", "ke toan", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, env.Retryable)
}

func TestConfirmMovement(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPut, "/api/invoices/1/confirm-movement", "thu kho", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"movement_status":"DONE"`)
	assert.Equal(t, staffUUID, f.confirm.staff)

	code, _ = f.do(t, http.MethodPut, "/api/invoices/1/confirm-movement", "ke toan", "")
	assert.Equal(t, http.StatusForbidden, code)

	f.confirm.err = service.ErrAlreadyMoved
	code, env = f.do(t, http.MethodPut, "/api/invoices/1/confirm-movement", "thu kho", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Phiếu đã được xác nhận nhập/xuất kho", env.Error)
}

func TestConfirmPaymentErrorMapping(t *testing.T) {
	f := newFixture(t)
	body := `{"payment_method":"BANKING","paid_amount":"460001","reference_code":"FT2603"}`

	code, _ := f.do(t, http.MethodPut, "/api/invoices/1/confirm-payment", "ke toan", body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FT2603", f.confirm.payment.ReferenceCode)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &service.ValidationError{Fields: map[string]string{service.FieldReference: "Vui lòng nhập mã tham chiếu chuyển khoản"}}, http.StatusUnprocessableEntity},
		{"not found", service.ErrInvoiceNotFound, http.StatusNotFound},
		{"settled", service.ErrAlreadySettled, http.StatusConflict},
		{"in flight", service.ErrConfirmationInFlight, http.StatusConflict},
		{"transient", errors.New("begin tx: connection reset"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.confirm.err = tc.err
			code, env := f.do(t, http.MethodPut, "/api/invoices/1/confirm-payment", "ke toan", body)
			assert.Equal(t, tc.status, code)
			if tc.status == http.StatusUnprocessableEntity {
				assert.Equal(t, "Vui lòng nhập mã tham chiếu chuyển khoản", env.Fields[service.FieldReference])
			}
		})
	}
}
