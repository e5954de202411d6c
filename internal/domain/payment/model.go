package payment

import (
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// PaymentMethod is a stored reference to a card-like instrument at the
// external gateway. Only the opaque gateway token and display fields live
// here; raw card data never enters this system.
type PaymentMethod struct {
	ID string `db:"id" json:"id"`

	// GatewayToken is the opaque token identifying the instrument at the
	// gateway, ex a Stripe payment method id.
	GatewayToken string `db:"gateway_token" json:"gateway_token"`

	Brand    string `db:"brand" json:"brand"`
	Last4    string `db:"last4" json:"last4"`
	ExpMonth int    `db:"exp_month" json:"exp_month"`
	ExpYear  int    `db:"exp_year" json:"exp_year"`

	// IsDefault marks the instrument charged when a caller does not name
	// one. The first method added for a tenant becomes default; at most one
	// default exists per tenant.
	IsDefault bool `db:"is_default" json:"is_default"`

	types.BaseModel
}
