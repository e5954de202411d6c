package types

import (
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
)

// InvoiceStatus is the status of an invoice in the ledger
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusOpen,
		InvoiceStatusPaid,
		InvoiceStatusVoid,
		InvoiceStatusUncollectible,
	}
	for _, status := range allowed {
		if s == status {
			return nil
		}
	}
	return ierr.NewError("invalid invoice status").
		WithHint("Invalid invoice status").
		WithReportableDetails(map[string]any{
			"status":  s,
			"allowed": allowed,
		}).
		Mark(ierr.ErrValidation)
}

// IsFinal reports whether the invoice allows no further mutation.
func (s InvoiceStatus) IsFinal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// CanTransitionTo enforces the ledger's append-only transitions.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return target == InvoiceStatusOpen || target == InvoiceStatusPaid || target == InvoiceStatusVoid
	case InvoiceStatusOpen:
		return target == InvoiceStatusPaid || target == InvoiceStatusVoid || target == InvoiceStatusUncollectible
	default:
		return false
	}
}
