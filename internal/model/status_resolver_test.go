package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveAxesIsTotal(t *testing.T) {
	kinds := []InvoiceKind{KindImport, KindExport, KindReturnImport}
	axes := []AxisStatus{AxisPending, AxisDone}

	for _, kind := range kinds {
		for _, mv := range axes {
			for _, pay := range axes {
				view := ResolveAxes(kind, mv, pay, "")
				assert.NotEmpty(t, view.MovementLabel)
				assert.NotEmpty(t, view.PaymentLabel)
				assert.NotEmpty(t, view.OverallLabel)

				wantOverall := ChipProcessing
				if mv == AxisDone && pay == AxisDone {
					wantOverall = ChipCompleted
				}
				assert.Equal(t, wantOverall, view.Chips.Overall, "%s %s/%s", kind, mv, pay)

				wantPay := ChipUnpaid
				if pay == AxisDone {
					wantPay = ChipPaid
				}
				assert.Equal(t, wantPay, view.Chips.Payment)
			}
		}
	}
}

func TestResolveMovementWordingPerKind(t *testing.T) {
	cases := []struct {
		kind               InvoiceKind
		doneLabel, pending string
		doneChip           string
	}{
		{KindImport, "Đã nhập kho", "Chưa nhập kho", ChipImported},
		{KindExport, "Đã xuất kho", "Chưa xuất kho", ChipExported},
		{KindReturnImport, "Đã trả hàng", "Chưa trả hàng", ChipReturned},
	}
	for _, tc := range cases {
		done := ResolveAxes(tc.kind, AxisDone, AxisPending, StatusProcessing)
		assert.Equal(t, tc.doneLabel, done.MovementLabel)
		assert.Equal(t, tc.doneChip, done.Chips.Movement)

		pending := ResolveAxes(tc.kind, AxisPending, AxisPending, StatusProcessing)
		assert.Equal(t, tc.pending, pending.MovementLabel)
	}
}

func TestResolveUnknownValuesFallBack(t *testing.T) {
	view := ResolveAxes(InvoiceKind("TRANSFER"), AxisStatus("weird"), AxisStatus(""), OverallStatus("?"))
	assert.Equal(t, "Chưa nhập kho", view.MovementLabel)
	assert.Equal(t, "Chưa thanh toán", view.PaymentLabel)
	assert.Equal(t, "Đang xử lý", view.OverallLabel)
}

func TestResolveStatusUsesStoredOverall(t *testing.T) {
	inv := &Invoice{Kind: KindExport, MovementStatus: AxisDone, PaymentStatus: AxisPending, Status: StatusComplete}
	view := ResolveStatus(inv)
	assert.Equal(t, "Hoàn thành", view.OverallLabel)
	assert.Equal(t, ChipUnpaid, view.Chips.Payment)
}
