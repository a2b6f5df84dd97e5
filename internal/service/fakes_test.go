package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"warehouse/internal/cache"
	"warehouse/internal/model"
	"warehouse/internal/repository"
	"warehouse/pkg/pagination"
	"warehouse/pkg/textnorm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// memStore is an in-memory stand-in for the database. The fake transaction
// manager snapshots it before a transaction and restores it on error.
type memStore struct {
	mu       sync.Mutex
	invoices map[uint]model.Invoice
	nextID   uint
	payments []model.InvoicePayment
	products map[uuid.UUID]model.Product
	ledger   []model.InventoryTransaction
	audits   []model.AuditLog
	partners map[uuid.UUID]model.Partner
	users    map[uuid.UUID]model.User

	listErr   error
	listCalls int
	queries   []repository.InvoiceQuery
}

func newMemStore() *memStore {
	return &memStore{
		invoices: make(map[uint]model.Invoice),
		products: make(map[uuid.UUID]model.Product),
		partners: make(map[uuid.UUID]model.Partner),
		users:    make(map[uuid.UUID]model.User),
	}
}

func cloneInvoice(inv model.Invoice) model.Invoice {
	inv.Items = append([]model.InvoiceItem(nil), inv.Items...)
	return inv
}

type snapshot struct {
	invoices map[uint]model.Invoice
	nextID   uint
	payments []model.InvoicePayment
	products map[uuid.UUID]model.Product
	ledger   []model.InventoryTransaction
	audits   []model.AuditLog
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		invoices: make(map[uint]model.Invoice, len(m.invoices)),
		nextID:   m.nextID,
		payments: append([]model.InvoicePayment(nil), m.payments...),
		products: make(map[uuid.UUID]model.Product, len(m.products)),
		ledger:   append([]model.InventoryTransaction(nil), m.ledger...),
		audits:   append([]model.AuditLog(nil), m.audits...),
	}
	for k, v := range m.invoices {
		s.invoices[k] = cloneInvoice(v)
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = s.invoices
	m.nextID = s.nextID
	m.payments = s.payments
	m.products = s.products
	m.ledger = s.ledger
	m.audits = s.audits
}

// --- fixtures ---

func (m *memStore) addProduct(sku, name string, stock int) model.Product {
	p := model.Product{ID: uuid.New(), SKU: sku, Name: name, CurrentStock: stock}
	m.products[p.ID] = p
	return p
}

func (m *memStore) addSupplier(name string) model.Partner {
	p := model.Partner{ID: uuid.New(), Name: name, Type: model.PartnerTypeSupplier, IsActive: true}
	m.partners[p.ID] = p
	return p
}

func (m *memStore) addUser(fullName string) model.User {
	u := model.User{ID: uuid.New(), Username: strings.ToLower(strings.ReplaceAll(fullName, " ", ".")), FullName: fullName, Role: "staff"}
	m.users[u.ID] = u
	return u
}

// seedInvoice inserts an invoice directly, bypassing the service.
func (m *memStore) seedInvoice(inv model.Invoice) model.Invoice {
	inv.Recalculate()
	if inv.MovementStatus == "" {
		inv.MovementStatus = model.AxisPending
	}
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = model.AxisPending
	}
	if inv.PaymentMethod == "" {
		inv.PaymentMethod = model.PaymentUndefined
	}
	model.DefaultCompletionPolicy.ApplyStatus(&inv)
	_ = memInvoiceRepo{m}.Create(context.Background(), &inv)
	return m.invoice(inv.ID)
}

func (m *memStore) invoice(id uint) model.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneInvoice(m.invoices[id])
}

func (m *memStore) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].CurrentStock
}

// --- InvoiceRepository ---

type memInvoiceRepo struct{ *memStore }

func (r memInvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = r.nextID
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = baseTime.Add(time.Duration(inv.ID) * time.Minute)
	}
	inv.UpdatedAt = inv.CreatedAt
	inv.SearchText = inv.BuildSearchText()
	for i := range inv.Items {
		inv.Items[i].ID = uint(i + 1)
		inv.Items[i].InvoiceID = inv.ID
	}
	r.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (r memInvoiceRepo) FindByID(ctx context.Context, id uint) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := cloneInvoice(inv)
	return &out, nil
}

func (r memInvoiceRepo) FindByCode(ctx context.Context, code string) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.Code == code {
			out := cloneInvoice(inv)
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uint) (*model.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r memInvoiceRepo) UpdateStatus(ctx context.Context, inv *model.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.MovementStatus = inv.MovementStatus
	stored.PaymentStatus = inv.PaymentStatus
	stored.Status = inv.Status
	stored.PaymentMethod = inv.PaymentMethod
	stored.PaymentReference = inv.PaymentReference
	stored.PaidAmount = inv.PaidAmount
	stored.MovedAt = inv.MovedAt
	stored.PaidAt = inv.PaidAt
	stored.UpdatedAt = inv.UpdatedAt
	r.invoices[inv.ID] = stored
	return nil
}

func (r memInvoiceRepo) CreatePayment(ctx context.Context, p *model.InvoicePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uint(len(r.payments) + 1)
	r.payments = append(r.payments, *p)
	return nil
}

func (r memInvoiceRepo) ListPayments(ctx context.Context, invoiceID uint) ([]model.InvoicePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InvoicePayment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchesQuery(inv model.Invoice, q repository.InvoiceQuery) bool {
	if inv.Kind != q.Kind {
		return false
	}
	if q.Keyword != "" && !strings.Contains(inv.SearchText, q.Keyword) {
		return false
	}
	if q.MovementStatus != nil && inv.MovementStatus != *q.MovementStatus {
		return false
	}
	if q.PaymentStatus != nil && inv.PaymentStatus != *q.PaymentStatus {
		return false
	}
	if q.Status != nil && inv.Status != *q.Status {
		return false
	}
	if q.DateFrom != nil && inv.CreatedAt.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && !inv.CreatedAt.Before(*q.DateTo) {
		return false
	}
	return true
}

func (r memInvoiceRepo) List(ctx context.Context, q repository.InvoiceQuery) ([]model.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	r.queries = append(r.queries, q)
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	if q.MovementStatus != nil && q.PaymentStatus != nil {
		return nil, 0, repository.ErrCompoundAxisFilter
	}

	var rows []model.Invoice
	for _, inv := range r.invoices {
		if matchesQuery(inv, q) {
			rows = append(rows, cloneInvoice(inv))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})

	total := int64(len(rows))
	if q.Offset >= len(rows) {
		return []model.Invoice{}, total, nil
	}
	rows = rows[q.Offset:]
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, total, nil
}

func (r memInvoiceRepo) Summarize(ctx context.Context, kind model.InvoiceKind, keyword string) (repository.InvoiceSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s repository.InvoiceSummary
	for _, inv := range r.invoices {
		if !matchesQuery(inv, repository.InvoiceQuery{Kind: kind, Keyword: keyword}) {
			continue
		}
		s.All++
		if inv.Status == model.StatusComplete {
			s.Completed++
		} else {
			s.Processing++
		}
		if inv.PaymentStatus == model.AxisDone {
			s.Paid++
		} else {
			s.Unpaid++
		}
		if inv.MovementStatus == model.AxisDone {
			s.Moved++
		} else {
			s.NotMoved++
		}
	}
	return s, nil
}

func (r memInvoiceRepo) NextCode(ctx context.Context, kind model.InvoiceKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inv := range r.invoices {
		if inv.Kind == kind {
			count++
		}
	}
	return fmt.Sprintf("%s%05d", kind.CodePrefix(), count+1), nil
}

func (r memInvoiceRepo) ReturnedQuantities(ctx context.Context, importID uint) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for _, inv := range r.invoices {
		if inv.Kind != model.KindReturnImport || inv.ReturnOfID == nil || *inv.ReturnOfID != importID {
			continue
		}
		for _, item := range inv.Items {
			out[item.ProductID] += item.Quantity
		}
	}
	return out, nil
}

// --- ProductRepository ---

type memProductRepo struct{ *memStore }

func (r memProductRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProductRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memProductRepo) UpdateStock(ctx context.Context, id uuid.UUID, stock int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.products[id]
	p.CurrentStock = stock
	r.products[id] = p
	return nil
}

func (r memProductRepo) Search(ctx context.Context, keyword string, offset, limit int) ([]model.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.products {
		if keyword == "" || textnorm.Contains(p.SKU+" "+p.Name, keyword) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return pagination.Slice(out, pagination.Params{Offset: offset, PageSize: limit}), int64(len(out)), nil
}

// --- InventoryTxRepository ---

type memLedgerRepo struct{ *memStore }

func (r memLedgerRepo) Create(ctx context.Context, tx *model.InventoryTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = uuid.New()
	r.ledger = append(r.ledger, *tx)
	return nil
}

func (r memLedgerRepo) ListByInvoice(ctx context.Context, invoiceID uint) ([]model.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InventoryTransaction
	for _, row := range r.ledger {
		if row.InvoiceID == invoiceID {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- AuditRepository ---

type memAuditRepo struct{ *memStore }

func (r memAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = baseTime.Add(time.Duration(len(r.audits)) * time.Second)
	if entry.UserID != nil {
		if u, ok := r.users[*entry.UserID]; ok {
			entry.User = &u
		}
	}
	r.audits = append(r.audits, *entry)
	return nil
}

func (r memAuditRepo) ListByEntity(ctx context.Context, entityType, entityID string, page, limit int) ([]model.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditLog
	for i := len(r.audits) - 1; i >= 0; i-- {
		a := r.audits[i]
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	total := int64(len(out))
	offset := (page - 1) * limit
	if offset >= len(out) {
		return []model.AuditLog{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// --- PartnerRepository / UserRepository ---

type memPartnerRepo struct{ *memStore }

func (r memPartnerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r memPartnerRepo) SearchSuppliers(ctx context.Context, keyword string, offset, limit int) ([]model.Partner, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Partner
	for _, p := range r.partners {
		if !p.CanSupply() {
			continue
		}
		if keyword == "" || textnorm.Contains(p.Name, keyword) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return pagination.Slice(out, pagination.Params{Offset: offset, PageSize: limit}), int64(len(out)), nil
}

type memUserRepo struct{ *memStore }

func (r memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

// --- TransactionManager ---

type memTxManager struct{ store *memStore }

func (t memTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// --- cache / events ---

type recordingCache struct {
	mu          sync.Mutex
	payloads    map[uint][]byte
	invalidated []uint
}

func newRecordingCache() *recordingCache {
	return &recordingCache{payloads: make(map[uint][]byte)}
}

func (c *recordingCache) Fetch(ctx context.Context, id uint, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	c.mu.Lock()
	raw, ok := c.payloads[id]
	c.mu.Unlock()
	if ok {
		return json.Unmarshal(raw, dest)
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.payloads[id] = raw
	c.mu.Unlock()
	return json.Unmarshal(raw, dest)
}

func (c *recordingCache) Invalidate(ctx context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.payloads, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type publishedEvent struct {
	name    string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{name: event, payload: payload})
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// --- harness ---

type harness struct {
	store        *memStore
	cache        *recordingCache
	events       *recordingPublisher
	locker       *cache.Locker
	invoices     InvoiceService
	confirmation ConfirmationService
	history      HistoryService
	supplier     model.Partner
	staff        model.User
}

func newHarness(policy model.CompletionPolicy) *harness {
	store := newMemStore()
	h := &harness{
		store:  store,
		cache:  newRecordingCache(),
		events: &recordingPublisher{},
		locker: cache.NewLocker(nil, time.Second, quietLogger()),
	}
	h.supplier = store.addSupplier("Công ty Thép Việt")
	h.staff = store.addUser("Nguyễn Văn An")

	h.invoices = NewInvoiceService(memInvoiceRepo{store}, memProductRepo{store}, memPartnerRepo{store},
		memUserRepo{store}, memAuditRepo{store}, memTxManager{store}, h.cache, quietLogger())
	cs := NewConfirmationService(memInvoiceRepo{store}, memProductRepo{store}, memLedgerRepo{store},
		memAuditRepo{store}, memTxManager{store}, h.cache, h.locker, h.events, policy, quietLogger())
	cs.(*confirmationService).now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	h.confirmation = cs
	h.history = NewHistoryService(memInvoiceRepo{store}, memAuditRepo{store})
	return h
}

// pendingInvoice seeds a PENDING/PENDING invoice with one line.
func (h *harness) pendingInvoice(kind model.InvoiceKind, code string, product model.Product, qty int, unitPrice int64) model.Invoice {
	return h.store.seedInvoice(model.Invoice{
		Code:         code,
		Kind:         kind,
		SupplierID:   h.supplier.ID,
		SupplierName: h.supplier.Name,
		StaffID:      h.staff.ID,
		StaffName:    h.staff.FullName,
		Items: []model.InvoiceItem{{
			ProductID:   product.ID,
			ProductSKU:  product.SKU,
			ProductName: product.Name,
			Quantity:    qty,
			UnitPrice:   decimal.NewFromInt(unitPrice),
		}},
	})
}
