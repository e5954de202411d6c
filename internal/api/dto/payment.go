package dto

import (
	"context"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

type CreatePaymentMethodRequest struct {
	// GatewayToken is the gateway-side token for the card, obtained by the
	// client from the gateway's tokenization flow.
	GatewayToken string `json:"gateway_token" validate:"required"`

	Brand    string `json:"brand" validate:"required"`
	Last4    string `json:"last4" validate:"required,len=4,numeric"`
	ExpMonth int    `json:"exp_month" validate:"required,gte=1,lte=12"`
	ExpYear  int    `json:"exp_year" validate:"required,gte=2020"`

	SetDefault bool `json:"set_default"`
}

func (r *CreatePaymentMethodRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreatePaymentMethodRequest) ToPaymentMethod(ctx context.Context) *payment.PaymentMethod {
	return &payment.PaymentMethod{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_METHOD),
		GatewayToken: r.GatewayToken,
		Brand:        r.Brand,
		Last4:        r.Last4,
		ExpMonth:     r.ExpMonth,
		ExpYear:      r.ExpYear,
		IsDefault:    r.SetDefault,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
}

type PaymentMethodResponse struct {
	*payment.PaymentMethod
}

type ListPaymentMethodsResponse struct {
	Items []*PaymentMethodResponse `json:"items"`
	Total int                      `json:"total"`
}
