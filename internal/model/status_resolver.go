package model

// Chip classifications consumed by list pages
const (
	ChipCompleted   = "completed"
	ChipProcessing  = "processing"
	ChipPaid        = "paid"
	ChipUnpaid      = "unpaid"
	ChipImported    = "imported"
	ChipNotImported = "not_imported"
	ChipExported    = "exported"
	ChipNotExported = "not_exported"
	ChipReturned    = "returned"
	ChipNotReturned = "not_returned"
)

// StatusChips groups the chip class for each axis plus the overall status.
type StatusChips struct {
	Overall  string `json:"overall"`
	Payment  string `json:"payment"`
	Movement string `json:"movement"`
}

// StatusView is the display form of an invoice's status axes.
type StatusView struct {
	MovementLabel string      `json:"movement_label"`
	PaymentLabel  string      `json:"payment_label"`
	OverallLabel  string      `json:"overall_label"`
	Chips         StatusChips `json:"chips"`
}

type movementText struct {
	doneLabel, pendingLabel string
	doneChip, pendingChip   string
}

var movementTexts = map[InvoiceKind]movementText{
	KindImport:       {"Đã nhập kho", "Chưa nhập kho", ChipImported, ChipNotImported},
	KindExport:       {"Đã xuất kho", "Chưa xuất kho", ChipExported, ChipNotExported},
	KindReturnImport: {"Đã trả hàng", "Chưa trả hàng", ChipReturned, ChipNotReturned},
}

// ResolveStatus maps an invoice's canonical status values to labels and chips.
func ResolveStatus(inv *Invoice) StatusView {
	return ResolveAxes(inv.Kind, inv.MovementStatus, inv.PaymentStatus, inv.Status)
}

// ResolveAxes is total over every (movement, payment) pair: anything that is
// not DONE is shown as pending, and an unknown kind falls back to import wording.
// An empty overall status is derived with the default policy.
func ResolveAxes(kind InvoiceKind, movement, payment AxisStatus, overall OverallStatus) StatusView {
	mt, ok := movementTexts[kind]
	if !ok {
		mt = movementTexts[KindImport]
	}
	if overall != StatusComplete && overall != StatusProcessing {
		overall = DefaultCompletionPolicy.Derive(kind, movement, payment)
	}

	var view StatusView
	if movement == AxisDone {
		view.MovementLabel, view.Chips.Movement = mt.doneLabel, mt.doneChip
	} else {
		view.MovementLabel, view.Chips.Movement = mt.pendingLabel, mt.pendingChip
	}

	if payment == AxisDone {
		view.PaymentLabel, view.Chips.Payment = "Đã thanh toán", ChipPaid
	} else {
		view.PaymentLabel, view.Chips.Payment = "Chưa thanh toán", ChipUnpaid
	}

	if overall == StatusComplete {
		view.OverallLabel, view.Chips.Overall = "Hoàn thành", ChipCompleted
	} else {
		view.OverallLabel, view.Chips.Overall = "Đang xử lý", ChipProcessing
	}
	return view
}
