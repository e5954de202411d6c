package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Invoice is an append-only ledger entry for one charge against a
// subscription's billing period. AmountMinor snapshots the plan price at
// issuance; later plan price changes never touch issued invoices.
type Invoice struct {
	ID             string  `db:"id" json:"id"`
	SubscriptionID string  `db:"subscription_id" json:"subscription_id"`
	PlanID         string  `db:"plan_id" json:"plan_id"`
	InvoiceNumber  string  `db:"invoice_number" json:"invoice_number"`
	IdempotencyKey *string `db:"idempotency_key" json:"idempotency_key,omitempty"`

	// AmountMinor is the amount due in minor currency units (cents).
	AmountMinor int64  `db:"amount_minor" json:"amount_minor"`
	Currency    string `db:"currency" json:"currency"`

	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	Description   string              `db:"description" json:"description"`

	PeriodStart time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time  `db:"period_end" json:"period_end"`
	DueDate     time.Time  `db:"due_date" json:"due_date"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	VoidedAt    *time.Time `db:"voided_at" json:"voided_at,omitempty"`

	types.BaseModel
}

// DisplayAmount returns the amount due in major currency units, ex 29.99
// for 2999 minor units.
func (i *Invoice) DisplayAmount() decimal.Decimal {
	return decimal.NewFromInt(i.AmountMinor).Div(decimal.NewFromInt(100))
}
