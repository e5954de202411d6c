package subscription

import (
	"time"

	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// PlanID is the identifier for the plan in our system
	PlanID string `db:"plan_id" json:"plan_id"`

	// SubscriptionStatus is the domain status of the subscription
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// Currency is the currency of the subscription in lowercase 3 digit ISO codes
	Currency string `db:"currency" json:"currency"`

	// CurrentPeriodStart is the start of the period the subscription has
	// been invoiced for.
	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`

	// CurrentPeriodEnd is the end of the period the subscription has been
	// invoiced for. At the end of this period a renewal is due.
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// CancelAtPeriodEnd marks the subscription for cancellation by the
	// renewal job instead of renewing.
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	// CancelledAt is the date the subscription was cancelled
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at"`

	// TrialStart is the start date of the trial period
	TrialStart *time.Time `db:"trial_start" json:"trial_start"`

	// TrialEnd is the end date of the trial period
	TrialEnd *time.Time `db:"trial_end" json:"trial_end"`

	// PaymentMethodID is the default payment method charged for this
	// subscription, if any.
	PaymentMethodID *string `db:"payment_method_id" json:"payment_method_id"`

	// Version is bumped on every update and checked optimistically so that
	// concurrent mutations of the same subscription cannot silently clobber
	// each other.
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// InTrial reports whether the subscription is trialing at t.
func (s *Subscription) InTrial(t time.Time) bool {
	return s.SubscriptionStatus == types.SubscriptionStatusTrialing &&
		s.TrialEnd != nil && t.Before(*s.TrialEnd)
}

// RenewalDue reports whether the current period has elapsed at t.
func (s *Subscription) RenewalDue(t time.Time) bool {
	return !t.Before(s.CurrentPeriodEnd)
}
