package dto

import (
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

type CreateSubscriptionRequest struct {
	PlanID string `json:"plan_id" validate:"required"`

	// TrialDays starts the subscription in a trial of that many days. No
	// charge is taken and no invoice is issued until the trial converts.
	TrialDays int `json:"trial_days" validate:"gte=0,lte=365"`

	// PaymentMethodID charges a specific stored method; when empty the
	// tenant's default method is used for paid plans.
	PaymentMethodID *string `json:"payment_method_id"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type UpdateSubscriptionRequest struct {
	// PlanID is the plan to switch to. Only upgrades to a more expensive
	// plan charge, and they charge the full new price immediately with no
	// proration credit for unused time.
	PlanID string `json:"plan_id" validate:"required"`
}

func (r *UpdateSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type CancelSubscriptionRequest struct {
	// CancelAtPeriodEnd defers the cancellation to the renewal job; the
	// subscription stays usable until the paid-for period runs out.
	CancelAtPeriodEnd bool `json:"cancel_at_period_end"`
}

type SubscriptionResponse struct {
	*subscription.Subscription
}

type ListSubscriptionsResponse struct {
	Items []*SubscriptionResponse `json:"items"`
	Total int                     `json:"total"`
}

// RenewalRunResponse reports the outcome of one renewal batch.
type RenewalRunResponse struct {
	Processed int `json:"processed"`
	Renewed   int `json:"renewed"`
	PastDue   int `json:"past_due"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// SettlementWebhookRequest is the payload posted by the gateway when an
// asynchronous settlement resolves. It references the subscription the
// charge was for; declined charges have no invoice to reference.
type SettlementWebhookRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
	Outcome        string `json:"outcome" validate:"required,oneof=settled declined"`
	GatewayRef     string `json:"gateway_ref"`
}

func (r *SettlementWebhookRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid settlement webhook payload").
			Mark(ierr.ErrValidation)
	}
	return nil
}
