package model

// CompletionPolicy decides when an invoice counts as COMPLETE. By default both
// axes must be DONE. Kinds listed as movement-only complete as soon as goods
// have moved (used for POS-channel documents that are paid at the counter).
type CompletionPolicy struct {
	movementOnly map[InvoiceKind]bool
}

// DefaultCompletionPolicy requires both axes for every kind.
var DefaultCompletionPolicy = CompletionPolicy{}

// NewCompletionPolicy builds a policy where the given kinds complete on movement alone.
func NewCompletionPolicy(movementOnly ...InvoiceKind) CompletionPolicy {
	p := CompletionPolicy{movementOnly: make(map[InvoiceKind]bool, len(movementOnly))}
	for _, k := range movementOnly {
		p.movementOnly[k] = true
	}
	return p
}

// MovementOnly reports whether kind completes on movement alone.
func (p CompletionPolicy) MovementOnly(kind InvoiceKind) bool {
	return p.movementOnly[kind]
}

// Derive is the single place the overall status is computed.
func (p CompletionPolicy) Derive(kind InvoiceKind, movement, payment AxisStatus) OverallStatus {
	if movement != AxisDone {
		return StatusProcessing
	}
	if payment == AxisDone || p.MovementOnly(kind) {
		return StatusComplete
	}
	return StatusProcessing
}

// ApplyStatus re-derives inv.Status from its axes.
func (p CompletionPolicy) ApplyStatus(inv *Invoice) {
	inv.Status = p.Derive(inv.Kind, inv.MovementStatus, inv.PaymentStatus)
}
