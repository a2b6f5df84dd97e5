package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecalculate(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	inv := &Invoice{Items: []InvoiceItem{
		{ProductID: p1, Quantity: 3, UnitPrice: decimal.RequireFromString("150000.3333")},
		{ProductID: p2, Quantity: 2, UnitPrice: decimal.NewFromInt(5000)},
		{ProductID: p1, Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
	}}
	inv.Recalculate()

	assert.Equal(t, 6, inv.TotalQuantity)
	assert.True(t, decimal.RequireFromString("460001.9999").Equal(inv.TotalAmount), inv.TotalAmount.String())
	assert.Equal(t, []int{1, 2, 3}, []int{inv.Items[0].LineNo, inv.Items[1].LineNo, inv.Items[2].LineNo})
	assert.True(t, inv.Reconciled())
	assert.Equal(t, map[uuid.UUID]int{p1: 4, p2: 2}, inv.QuantitiesByProduct())
}

func TestReconciledDetectsDrift(t *testing.T) {
	inv := &Invoice{Items: []InvoiceItem{{Quantity: 2, UnitPrice: decimal.NewFromInt(10)}}}
	inv.Recalculate()
	inv.TotalAmount = decimal.NewFromInt(21)
	assert.False(t, inv.Reconciled())

	inv.Recalculate()
	inv.Items[0].Amount = decimal.NewFromInt(19)
	assert.False(t, inv.Reconciled())
}

func TestOutstandingNeverNegative(t *testing.T) {
	inv := &Invoice{TotalAmount: decimal.NewFromInt(100), PaidAmount: decimal.NewFromInt(40)}
	assert.True(t, decimal.NewFromInt(60).Equal(inv.Outstanding()))

	inv.PaidAmount = decimal.NewFromInt(120)
	assert.True(t, inv.Outstanding().IsZero())
}

func TestBuildSearchText(t *testing.T) {
	inv := &Invoice{Code: "NK00012", SupplierName: "Công ty Thép Việt", StaffName: "Nguyễn Văn An"}
	assert.Equal(t, "nk00012 cong ty thep viet nguyen van an", inv.BuildSearchText())
}

func TestStockDirection(t *testing.T) {
	typ, sign := StockDirection(KindImport)
	assert.Equal(t, TxTypeIn, typ)
	assert.Equal(t, 1, sign)

	for _, k := range []InvoiceKind{KindExport, KindReturnImport} {
		typ, sign = StockDirection(k)
		assert.Equal(t, TxTypeOut, typ)
		assert.Equal(t, -1, sign)
	}
}

func TestPartnerCanSupply(t *testing.T) {
	assert.True(t, (&Partner{Type: PartnerTypeSupplier, IsActive: true}).CanSupply())
	assert.True(t, (&Partner{Type: PartnerTypeBoth, IsActive: true}).CanSupply())
	assert.False(t, (&Partner{Type: PartnerTypeCustomer, IsActive: true}).CanSupply())
	assert.False(t, (&Partner{Type: PartnerTypeSupplier}).CanSupply())
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Nguyễn Văn An", (&User{Username: "an.nv", FullName: "Nguyễn Văn An"}).DisplayName())
	assert.Equal(t, "an.nv", (&User{Username: "an.nv"}).DisplayName())
}
