package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// Gateway charges saved payment methods through Stripe PaymentIntents.
// Declines come back as a settled-vs-declined outcome, not an error;
// only transport and API faults surface as errors so callers can retry them.
type Gateway struct {
	client *stripe.Client
	logger *logger.Logger
}

func NewGateway(cfg *config.Configuration, logger *logger.Logger) (*Gateway, error) {
	if cfg.Settlement.StripeAPIKey == "" {
		return nil, ierr.NewError("stripe api key is not configured").
			WithHint("Set STACK21_SETTLEMENT_STRIPE_API_KEY to enable card settlement").
			Mark(ierr.ErrValidation)
	}
	return &Gateway{
		client: stripe.NewClient(cfg.Settlement.StripeAPIKey, nil),
		logger: logger,
	}, nil
}

func (g *Gateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.GatewayToken),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.Description),
		Metadata: map[string]string{
			"tenant_id":         req.TenantID,
			"payment_method_id": stripe.StringValue(req.PaymentMethodID),
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	paymentIntent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Type == stripe.ErrorTypeCard {
			g.logger.Infow("charge declined by issuer",
				"tenant_id", req.TenantID,
				"payment_method_id", req.PaymentMethodID,
				"stripe_error_code", stripeErr.Code)
			result := &payment.ChargeResult{
				Outcome:       types.SettlementOutcomeDeclined,
				FailureReason: string(stripeErr.Code),
			}
			if stripeErr.PaymentIntent != nil {
				result.GatewayRef = stripeErr.PaymentIntent.ID
			}
			return result, nil
		}

		g.logger.Errorw("failed to create payment intent",
			"error", err,
			"tenant_id", req.TenantID,
			"payment_method_id", req.PaymentMethodID,
			"amount_minor", req.AmountMinor)
		return nil, ierr.WithError(err).
			WithHint("Unable to reach the payment gateway").
			WithReportableDetails(map[string]interface{}{
				"payment_method_id": req.PaymentMethodID,
			}).
			Mark(ierr.ErrGateway)
	}

	if paymentIntent.Status != stripe.PaymentIntentStatusSucceeded {
		g.logger.Infow("payment intent did not settle",
			"tenant_id", req.TenantID,
			"payment_intent_id", paymentIntent.ID,
			"status", paymentIntent.Status)
		return &payment.ChargeResult{
			Outcome:       types.SettlementOutcomeDeclined,
			GatewayRef:    paymentIntent.ID,
			FailureReason: string(paymentIntent.Status),
		}, nil
	}

	return &payment.ChargeResult{
		Outcome:    types.SettlementOutcomeSettled,
		GatewayRef: paymentIntent.ID,
	}, nil
}
