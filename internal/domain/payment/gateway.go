package payment

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// ChargeRequest describes one settlement attempt against the gateway.
type ChargeRequest struct {
	TenantID string

	// PaymentMethodID is the stored payment method to charge. When nil the
	// tenant's default method is resolved by the settlement service before
	// the gateway is called.
	PaymentMethodID *string

	// GatewayToken is the gateway-side token for the resolved method.
	GatewayToken string

	// AmountMinor is the amount in minor currency units (cents).
	AmountMinor int64
	Currency    string

	// IdempotencyKey makes the charge safe to retry: the gateway must not
	// double-charge when the same key is presented twice. Callers derive it
	// from (subscription id, period label).
	IdempotencyKey string

	Description string
}

// ChargeResult is the business outcome of a charge attempt. A nil error
// with outcome Declined means the gateway answered and said no; transport
// and timeout faults are returned as errors instead and retried upstream.
type ChargeResult struct {
	Outcome types.SettlementOutcome

	// GatewayRef is the gateway-side identifier of the charge, ex a
	// payment intent id.
	GatewayRef string

	// FailureReason is set when the outcome is Declined.
	FailureReason string
}

// Gateway is the abstract boundary to the external payment gateway. The
// core never assumes a specific provider; production wires a Stripe-backed
// implementation and tests wire a deterministic fake.
type Gateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
}
