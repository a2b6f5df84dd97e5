package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"warehouse/internal/model"
	"warehouse/internal/repository"
	"warehouse/pkg/pagination"
	"warehouse/pkg/textnorm"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ListFilter is a list-page query. Kind is required; nil pointers mean "any".
type ListFilter struct {
	Kind           model.InvoiceKind
	Keyword        string
	MovementStatus *model.AxisStatus
	PaymentStatus  *model.AxisStatus
	Status         *model.OverallStatus
	DateFrom       *time.Time
	DateTo         *time.Time // exclusive
	Page           int
	PageSize       int
}

// ListResult never carries an error value: a failed query is an empty page
// with Failed set, which the list page renders differently from "no match".
type ListResult struct {
	Items         []InvoiceResponse `json:"items"`
	TotalElements int64             `json:"total_elements"`
	TotalPages    int               `json:"total_pages"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	Partial       bool              `json:"partial"` // in-memory filter hit the fetch cap
	Failed        bool              `json:"failed"`
	Stale         bool              `json:"stale"` // superseded by a newer request of the same session
	Error         string            `json:"error,omitempty"`
}

const listFailedMessage = "Không tải được danh sách phiếu, vui lòng thử lại"

type ListingService interface {
	ListInvoices(ctx context.Context, session string, filter ListFilter) ListResult
	SummarizeInvoices(ctx context.Context, kind model.InvoiceKind, keyword string) (repository.InvoiceSummary, error)
}

type listingService struct {
	invoiceRepo repository.InvoiceRepository
	policy      model.CompletionPolicy
	fallbackCap int
	maxPageSize int
	logger      logrus.FieldLogger

	group    singleflight.Group
	sessions *sessionTracker
}

func NewListingService(
	invoiceRepo repository.InvoiceRepository,
	policy model.CompletionPolicy,
	fallbackCap, maxPageSize int,
	logger logrus.FieldLogger,
) ListingService {
	return &listingService{
		invoiceRepo: invoiceRepo,
		policy:      policy,
		fallbackCap: fallbackCap,
		maxPageSize: maxPageSize,
		logger:      logger,
		sessions:    newSessionTracker(),
	}
}

func (s *listingService) ListInvoices(ctx context.Context, session string, filter ListFilter) ListResult {
	page := pagination.New(filter.Page, filter.PageSize, s.maxPageSize)
	filter.Keyword = textnorm.Fold(filter.Keyword)

	ctx, token, done := s.sessions.begin(ctx, session)
	defer done()

	res, err := s.collapse(ctx, filter, page)
	if !s.sessions.current(session, token) {
		return ListResult{Items: []InvoiceResponse{}, Page: page.Page, PageSize: page.PageSize, Stale: true}
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"kind":    filter.Kind,
			"keyword": filter.Keyword,
		}).Error("invoice list query failed")
		return ListResult{
			Items:    []InvoiceResponse{},
			Page:     page.Page,
			PageSize: page.PageSize,
			Failed:   true,
			Error:    listFailedMessage,
		}
	}
	return res
}

// collapse shares one query between identical concurrent requests. A caller
// whose own context is still live retries alone if the shared run was
// cancelled by another caller.
func (s *listingService) collapse(ctx context.Context, filter ListFilter, page pagination.Params) (ListResult, error) {
	key := filterKey(filter, page)
	ch := s.group.DoChan(key, func() (res interface{}, err error) {
		// singleflight re-panics on a fresh goroutine, out of reach of gin.Recovery
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("invoice list query panicked: %v", r)
			}
		}()
		return s.query(ctx, filter, page)
	})

	select {
	case <-ctx.Done():
		return ListResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil && r.Shared && ctx.Err() == nil &&
			(errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)) {
			return s.query(ctx, filter, page)
		}
		if r.Err != nil {
			return ListResult{}, r.Err
		}
		return r.Val.(ListResult), nil
	}
}

func (s *listingService) query(ctx context.Context, filter ListFilter, page pagination.Params) (ListResult, error) {
	q := repository.InvoiceQuery{
		Kind:     filter.Kind,
		Keyword:  filter.Keyword,
		Status:   filter.Status,
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
	}

	both := filter.MovementStatus != nil && filter.PaymentStatus != nil
	if both && s.completeEquivalent(filter) {
		// movement DONE and payment DONE is exactly COMPLETE under this policy
		complete := model.StatusComplete
		q.Status = &complete
		both = false
	} else if !both {
		q.MovementStatus = filter.MovementStatus
		q.PaymentStatus = filter.PaymentStatus
	}

	if both {
		return s.queryFallback(ctx, q, filter, page)
	}

	q.Offset = page.Offset
	q.Limit = page.PageSize
	rows, total, err := s.invoiceRepo.List(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list invoices: %w", err)
	}
	return buildResult(rows, total, page, false), nil
}

func (s *listingService) completeEquivalent(f ListFilter) bool {
	if *f.MovementStatus != model.AxisDone || *f.PaymentStatus != model.AxisDone {
		return false
	}
	if s.policy.MovementOnly(f.Kind) {
		return false
	}
	return f.Status == nil || *f.Status == model.StatusComplete
}

// queryFallback serves filters the repository cannot express in one query:
// it fetches a capped superset filtered on the movement axis and applies the
// payment axis in memory.
func (s *listingService) queryFallback(ctx context.Context, q repository.InvoiceQuery, filter ListFilter, page pagination.Params) (ListResult, error) {
	q.MovementStatus = filter.MovementStatus
	q.Offset = 0
	q.Limit = s.fallbackCap + 1

	rows, _, err := s.invoiceRepo.List(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list invoices (fallback): %w", err)
	}

	partial := len(rows) > s.fallbackCap
	if partial {
		rows = rows[:s.fallbackCap]
		s.logger.WithFields(logrus.Fields{
			"kind": filter.Kind,
			"cap":  s.fallbackCap,
		}).Warn("invoice list fallback hit fetch cap, result is partial")
	}

	matched := make([]model.Invoice, 0, len(rows))
	for _, inv := range rows {
		if inv.PaymentStatus == *filter.PaymentStatus {
			matched = append(matched, inv)
		}
	}
	sortInvoices(matched)

	return buildResult(pagination.Slice(matched, page), int64(len(matched)), page, partial), nil
}

// sortInvoices applies the list order: newest first, id breaks ties.
func sortInvoices(rows []model.Invoice) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
}

func buildResult(rows []model.Invoice, total int64, page pagination.Params, partial bool) ListResult {
	items := make([]InvoiceResponse, 0, len(rows))
	for _, inv := range rows {
		resp := toInvoiceResponse(inv)
		resp.Items = nil
		items = append(items, resp)
	}
	return ListResult{
		Items:         items,
		TotalElements: total,
		TotalPages:    pagination.TotalPages(total, page.PageSize),
		Page:          page.Page,
		PageSize:      page.PageSize,
		Partial:       partial,
	}
}

func (s *listingService) SummarizeInvoices(ctx context.Context, kind model.InvoiceKind, keyword string) (repository.InvoiceSummary, error) {
	summary, err := s.invoiceRepo.Summarize(ctx, kind, textnorm.Fold(keyword))
	if err != nil {
		return repository.InvoiceSummary{}, fmt.Errorf("summarize invoices: %w", err)
	}
	return summary, nil
}

func filterKey(f ListFilter, p pagination.Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d|%d", f.Kind, f.Keyword, p.Page, p.PageSize)
	if f.MovementStatus != nil {
		fmt.Fprintf(&b, "|m=%s", *f.MovementStatus)
	}
	if f.PaymentStatus != nil {
		fmt.Fprintf(&b, "|p=%s", *f.PaymentStatus)
	}
	if f.Status != nil {
		fmt.Fprintf(&b, "|s=%s", *f.Status)
	}
	if f.DateFrom != nil {
		fmt.Fprintf(&b, "|from=%d", f.DateFrom.UnixNano())
	}
	if f.DateTo != nil {
		fmt.Fprintf(&b, "|to=%d", f.DateTo.UnixNano())
	}
	return b.String()
}

// sessionTracker implements last-request-wins per list session: starting a
// request cancels the previous one of the same session.
type sessionTracker struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]sessionEntry
}

type sessionEntry struct {
	token  uint64
	cancel context.CancelFunc
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{entries: make(map[string]sessionEntry)}
}

func (t *sessionTracker) begin(ctx context.Context, session string) (context.Context, uint64, func()) {
	if session == "" {
		return ctx, 0, func() {}
	}
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.seq++
	token := t.seq
	if prev, ok := t.entries[session]; ok {
		prev.cancel()
	}
	t.entries[session] = sessionEntry{token: token, cancel: cancel}
	t.mu.Unlock()

	return ctx, token, func() {
		cancel()
		t.mu.Lock()
		if e, ok := t.entries[session]; ok && e.token == token {
			delete(t.entries, session)
		}
		t.mu.Unlock()
	}
}

// current reports whether token is still the latest request of session.
func (t *sessionTracker) current(session string, token uint64) bool {
	if session == "" {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[session]
	return ok && e.token == token
}
