package service

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/idempotency"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// SubscriptionService owns the subscription lifecycle: creation, plan
// changes, cancellation, renewal, and settlement recovery. Mutations are
// serialized per tenant so the one-usable-subscription invariant cannot be
// raced. The tenant lock is never held across a gateway call: each charging
// operation reads under the lock, releases it, settles, then re-acquires
// and re-validates before applying the outcome.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	GetActiveSubscription(ctx context.Context) (*dto.SubscriptionResponse, error)
	ListSubscriptions(ctx context.Context, filter types.Filter) (*dto.ListSubscriptionsResponse, error)

	// UpdateSubscription switches the subscription to another plan. Only an
	// upgrade to a more expensive plan charges, and it charges the full new
	// plan price immediately; unused time on the old plan is not credited.
	// A declined upgrade charge still switches the plan and leaves the
	// status as it was.
	UpdateSubscription(ctx context.Context, id string, req dto.UpdateSubscriptionRequest) (*dto.SubscriptionResponse, error)

	// CancelSubscription cancels now or at period end. Cancelling an
	// already cancelled subscription is a no-op, not an error.
	CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)

	// ProcessRenewal renews one subscription whose period has elapsed.
	// A declined charge, including an unreachable gateway after retries,
	// moves it to past due without advancing the period or issuing an
	// invoice.
	ProcessRenewal(ctx context.Context, id string) (*dto.SubscriptionResponse, error)

	// ProcessRenewals runs the renewal batch over every due subscription.
	ProcessRenewals(ctx context.Context) (*dto.RenewalRunResponse, error)

	// RetrySettlement re-attempts the charge a past due subscription is
	// missing and restores it to active on success. Another decline comes
	// back as ErrPaymentDeclined.
	RetrySettlement(ctx context.Context, id string) (*dto.SubscriptionResponse, error)

	// HandleSettlementWebhook applies an asynchronous gateway outcome to
	// the referenced subscription, recovering past due without a
	// user-initiated retry.
	HandleSettlementWebhook(ctx context.Context, req dto.SettlementWebhookRequest) error
}

type subscriptionService struct {
	ServiceParams
	settlementSvc SettlementService
	invoiceSvc    InvoiceService
	idempGen      *idempotency.Generator
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		settlementSvc: NewSettlementService(params),
		invoiceSvc:    NewInvoiceService(params),
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	p, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNoUsableSubscription(ctx, tenantID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:             p.ID,
		Currency:           p.Currency,
		CurrentPeriodStart: now,
		PaymentMethodID:    req.PaymentMethodID,
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	switch {
	case req.TrialDays > 0:
		// Trials never charge; the first settlement happens at conversion.
		trialEnd := now.AddDate(0, 0, req.TrialDays)
		sub.SubscriptionStatus = types.SubscriptionStatusTrialing
		sub.TrialStart = lo.ToPtr(now)
		sub.TrialEnd = lo.ToPtr(trialEnd)
		sub.CurrentPeriodEnd = trialEnd

	case p.IsFree():
		periodEnd, err := types.NextBillingDate(now, p.Interval)
		if err != nil {
			return nil, err
		}
		sub.SubscriptionStatus = types.SubscriptionStatusActive
		sub.CurrentPeriodEnd = periodEnd

	default:
		periodEnd, err := types.NextBillingDate(now, p.Interval)
		if err != nil {
			return nil, err
		}
		sub.CurrentPeriodEnd = periodEnd

		// Charged without the tenant lock held; the duplicate check is
		// repeated before the row is written.
		result, err := s.settlementSvc.Settle(ctx, &SettleRequest{
			TenantID:        tenantID,
			SubscriptionID:  sub.ID,
			PaymentMethodID: req.PaymentMethodID,
			AmountMinor:     p.PriceMinor,
			Currency:        p.Currency,
			Description:     "Subscription to " + p.Name,
			Scope:           idempotency.ScopeInitialCharge,
			PeriodLabel:     types.PeriodLabelFor(now),
		})
		if err != nil {
			return nil, err
		}

		if result.Outcome == types.SettlementOutcomeSettled {
			sub.SubscriptionStatus = types.SubscriptionStatusActive
		} else {
			sub.SubscriptionStatus = types.SubscriptionStatusPastDue
		}
	}

	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	if existing, err := s.SubRepo.GetActiveByTenant(ctx, tenantID); err == nil {
		return nil, ierr.NewError("tenant already has a usable subscription").
			WithHint("Cancel the current subscription before creating a new one").
			WithReportableDetails(map[string]any{
				"subscription_id": existing.ID,
				"status":          existing.SubscriptionStatus,
			}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if sub.SubscriptionStatus == types.SubscriptionStatusActive && !p.IsFree() {
		if err := s.issuePaidInvoice(ctx, sub, p, idempotency.ScopeInitialCharge); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"tenant_id", tenantID,
		"plan_id", p.ID,
		"status", sub.SubscriptionStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

// checkNoUsableSubscription holds the tenant lock only for the duplicate
// read, so the gateway call that may follow runs unlocked.
func (s *subscriptionService) checkNoUsableSubscription(ctx context.Context, tenantID string) error {
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	existing, err := s.SubRepo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	return ierr.NewError("tenant already has a usable subscription").
		WithHint("Cancel the current subscription before creating a new one").
		WithReportableDetails(map[string]any{
			"subscription_id": existing.ID,
			"status":          existing.SubscriptionStatus,
		}).
		Mark(ierr.ErrAlreadyExists)
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) GetActiveSubscription(ctx context.Context) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.GetActiveByTenant(ctx, types.GetTenantID(ctx))
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, filter types.Filter) (*dto.ListSubscriptionsResponse, error) {
	subs, err := s.SubRepo.ListByTenant(ctx, types.GetTenantID(ctx), filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListSubscriptionsResponse{
		Items: lo.Map(subs, func(sub *subscription.Subscription, _ int) *dto.SubscriptionResponse {
			return &dto.SubscriptionResponse{Subscription: sub}
		}),
		Total: len(subs),
	}, nil
}

func (s *subscriptionService) UpdateSubscription(ctx context.Context, id string, req dto.UpdateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, newPlan, chargeNow, err := s.beginPlanChange(ctx, id, req.PlanID)
	if err != nil {
		return nil, err
	}
	if newPlan == nil {
		// Already on the requested plan.
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	settled := false
	if chargeNow {
		result, err := s.settlementSvc.Settle(ctx, &SettleRequest{
			TenantID:        sub.TenantID,
			SubscriptionID:  sub.ID,
			PaymentMethodID: sub.PaymentMethodID,
			AmountMinor:     newPlan.PriceMinor,
			Currency:        newPlan.Currency,
			Description:     "Plan change to " + newPlan.Name,
			Scope:           idempotency.ScopePlanChange,
			PeriodLabel:     types.PeriodLabelFor(sub.CurrentPeriodStart),
		})
		if err != nil {
			return nil, err
		}

		settled = result.Outcome == types.SettlementOutcomeSettled
		if !settled {
			// The switch still happens and the status stays what it was;
			// the upgrade charge is collected on the next renewal attempt.
			s.Logger.Warnw("plan change charge declined",
				"subscription_id", sub.ID,
				"plan_id", newPlan.ID,
				"failure_reason", result.FailureReason)
		}
	}

	return s.applyPlanChange(ctx, id, newPlan, chargeNow && settled)
}

// beginPlanChange reads and validates the subscription under the tenant
// lock and decides whether the switch charges. A nil plan in the return
// means the subscription is already on the requested plan.
func (s *subscriptionService) beginPlanChange(ctx context.Context, id, planID string) (*subscription.Subscription, *plan.Plan, bool, error) {
	tenantID := types.GetTenantID(ctx)
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	if sub.SubscriptionStatus.IsTerminal() {
		return nil, nil, false, ierr.NewError("subscription is no longer active").
			WithHint("Cancelled subscriptions cannot change plans").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if sub.PlanID == planID {
		return sub, nil, false, nil
	}

	newPlan, err := s.PlanRepo.Get(ctx, planID)
	if err != nil {
		return nil, nil, false, err
	}
	oldPlan, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, false, err
	}

	// Only upgrades charge, and only active subscriptions; downgrades and
	// trial switches settle at the old price point until the next renewal.
	chargeNow := newPlan.PriceMinor > oldPlan.PriceMinor &&
		sub.SubscriptionStatus == types.SubscriptionStatusActive
	return sub, newPlan, chargeNow, nil
}

// applyPlanChange re-reads the subscription under the tenant lock and
// switches the plan. The version check in the repository catches writes
// that landed while the lock was released for the charge.
func (s *subscriptionService) applyPlanChange(ctx context.Context, id string, newPlan *plan.Plan, invoicePaid bool) (*dto.SubscriptionResponse, error) {
	tenantID := types.GetTenantID(ctx)
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.SubscriptionStatus.IsTerminal() {
		return nil, ierr.NewError("subscription was cancelled during the plan change").
			WithHint("Cancelled subscriptions cannot change plans").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	sub.PlanID = newPlan.ID
	sub.Currency = newPlan.Currency
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if invoicePaid {
		if err := s.issuePaidInvoice(ctx, sub, newPlan, idempotency.ScopePlanChange); err != nil {
			return nil, err
		}
	}

	s.Logger.Infow("switched subscription plan",
		"subscription_id", sub.ID,
		"plan_id", newPlan.ID,
		"status", sub.SubscriptionStatus)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, req dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	tenantID := types.GetTenantID(ctx)
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	// Idempotent: cancelling twice returns the same terminal state.
	if sub.SubscriptionStatus.IsTerminal() {
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	if req.CancelAtPeriodEnd {
		if !sub.CancelAtPeriodEnd {
			sub.CancelAtPeriodEnd = true
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return nil, err
			}
		}
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CancelledAt = lo.ToPtr(time.Now().UTC())
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled subscription",
		"subscription_id", sub.ID,
		"tenant_id", tenantID)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ProcessRenewal(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	resp, settleReq, p, err := s.beginRenewal(ctx, id)
	if err != nil || settleReq == nil {
		return resp, err
	}

	// Tenant lock released while the gateway answers.
	result, err := s.settlementSvc.Settle(ctx, settleReq)
	if err != nil {
		return nil, err
	}

	return s.applyRenewalOutcome(ctx, id, p, result.Outcome, result.FailureReason)
}

// beginRenewal resolves every renewal that needs no charge under the tenant
// lock. When a charge is needed it returns the settle request instead of a
// response.
func (s *subscriptionService) beginRenewal(ctx context.Context, id string) (*dto.SubscriptionResponse, *SettleRequest, *plan.Plan, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	s.Locks.Lock(tenantKey(sub.TenantID))
	defer s.Locks.Unlock(tenantKey(sub.TenantID))

	// Re-read under the lock; a cancel may have landed in between.
	sub, err = s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now().UTC()
	// Terminal and past due subscriptions are not renewed here; past due
	// recovers through retry or the settlement webhook.
	if !sub.SubscriptionStatus.IsUsable() {
		return &dto.SubscriptionResponse{Subscription: sub}, nil, nil, nil
	}
	if !sub.RenewalDue(now) {
		return &dto.SubscriptionResponse{Subscription: sub}, nil, nil, nil
	}

	if sub.CancelAtPeriodEnd {
		sub.SubscriptionStatus = types.SubscriptionStatusCancelled
		sub.CancelledAt = lo.ToPtr(now)
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return nil, nil, nil, err
		}
		s.Logger.Infow("cancelled subscription at period end", "subscription_id", sub.ID)
		return &dto.SubscriptionResponse{Subscription: sub}, nil, nil, nil
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, nil, err
	}

	if p.IsFree() {
		// Free plans roll forward with contiguous periods and no ledger entry.
		if err := s.advancePeriod(ctx, sub, p); err != nil {
			return nil, nil, nil, err
		}
		sub.SubscriptionStatus = types.SubscriptionStatusActive
		sub.TrialStart, sub.TrialEnd = nil, nil
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return nil, nil, nil, err
		}
		return &dto.SubscriptionResponse{Subscription: sub}, nil, nil, nil
	}

	return nil, &SettleRequest{
		TenantID:        sub.TenantID,
		SubscriptionID:  sub.ID,
		PaymentMethodID: sub.PaymentMethodID,
		AmountMinor:     p.PriceMinor,
		Currency:        p.Currency,
		Description:     "Renewal of " + p.Name,
		Scope:           idempotency.ScopeRenewal,
		PeriodLabel:     types.PeriodLabelFor(sub.CurrentPeriodEnd),
	}, p, nil
}

// applyRenewalOutcome re-acquires the tenant lock, re-reads the
// subscription, and applies the charge outcome if the renewal is still
// pending.
func (s *subscriptionService) applyRenewalOutcome(ctx context.Context, id string, p *plan.Plan, outcome types.SettlementOutcome, failureReason string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Locks.Lock(tenantKey(sub.TenantID))
	defer s.Locks.Unlock(tenantKey(sub.TenantID))

	sub, err = s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !sub.SubscriptionStatus.IsUsable() || !sub.RenewalDue(now) {
		// Cancelled during the charge, or another run already renewed this
		// period under the same idempotency key.
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	if outcome == types.SettlementOutcomeDeclined {
		sub.SubscriptionStatus = types.SubscriptionStatusPastDue
		if err := s.SubRepo.Update(ctx, sub); err != nil {
			return nil, err
		}
		s.Logger.Infow("renewal declined",
			"subscription_id", sub.ID,
			"failure_reason", failureReason)
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	if err := s.advancePeriod(ctx, sub, p); err != nil {
		return nil, err
	}
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.TrialStart, sub.TrialEnd = nil, nil
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.issuePaidInvoice(ctx, sub, p, idempotency.ScopeRenewal); err != nil {
		return nil, err
	}

	s.Logger.Infow("renewed subscription",
		"subscription_id", sub.ID,
		"period_start", sub.CurrentPeriodStart,
		"period_end", sub.CurrentPeriodEnd)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) ProcessRenewals(ctx context.Context) (*dto.RenewalRunResponse, error) {
	now := time.Now().UTC()
	due, err := s.SubRepo.ListRenewalDue(ctx, now, types.Filter{Limit: types.FilterMaxLimit})
	if err != nil {
		return nil, err
	}

	resp := &dto.RenewalRunResponse{Processed: len(due)}
	for _, sub := range due {
		renewCtx := types.SetTenantID(ctx, sub.TenantID)
		result, err := s.ProcessRenewal(renewCtx, sub.ID)
		if err != nil {
			// One bad subscription must not sink the batch
			s.Logger.Errorw("renewal failed",
				"subscription_id", sub.ID,
				"tenant_id", sub.TenantID,
				"error", err)
			resp.Failed++
			continue
		}

		switch result.SubscriptionStatus {
		case types.SubscriptionStatusActive:
			resp.Renewed++
		case types.SubscriptionStatusPastDue:
			resp.PastDue++
		case types.SubscriptionStatusCancelled:
			resp.Cancelled++
		}
	}

	s.Logger.Infow("renewal batch finished",
		"processed", resp.Processed,
		"renewed", resp.Renewed,
		"past_due", resp.PastDue,
		"cancelled", resp.Cancelled,
		"failed", resp.Failed)
	return resp, nil
}

func (s *subscriptionService) RetrySettlement(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	settleReq, p, renewing, err := s.beginRetry(ctx, id)
	if err != nil {
		return nil, err
	}

	// Lock released for the charge, same discipline as renewal.
	result, err := s.settlementSvc.Settle(ctx, settleReq)
	if err != nil {
		return nil, err
	}

	if result.Outcome == types.SettlementOutcomeDeclined {
		s.Logger.Infow("settlement retry declined",
			"subscription_id", id,
			"failure_reason", result.FailureReason)
		return nil, ierr.NewError("charge was declined").
			WithHint("The payment was declined; update the payment method and retry").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
				"failure_reason":  result.FailureReason,
			}).
			Mark(ierr.ErrPaymentDeclined)
	}

	return s.applyRetrySuccess(ctx, id, p, settleReq.Scope, renewing)
}

// beginRetry validates the retry under the tenant lock and derives which
// missing settlement to re-attempt: the current period's initial charge or
// an elapsed period's renewal.
func (s *subscriptionService) beginRetry(ctx context.Context, id string) (*SettleRequest, *plan.Plan, bool, error) {
	tenantID := types.GetTenantID(ctx)
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	if sub.SubscriptionStatus != types.SubscriptionStatusPastDue {
		return nil, nil, false, ierr.NewError("subscription is not past due").
			WithHint("Only past due subscriptions have a settlement to retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"status":          sub.SubscriptionStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, false, err
	}

	renewing := sub.RenewalDue(time.Now().UTC())
	scope := idempotency.ScopeInitialCharge
	label := types.PeriodLabelFor(sub.CurrentPeriodStart)
	if renewing {
		scope = idempotency.ScopeRenewal
		label = types.PeriodLabelFor(sub.CurrentPeriodEnd)
	}

	return &SettleRequest{
		TenantID:        tenantID,
		SubscriptionID:  sub.ID,
		PaymentMethodID: sub.PaymentMethodID,
		AmountMinor:     p.PriceMinor,
		Currency:        p.Currency,
		Description:     "Settlement retry for " + p.Name,
		Scope:           scope,
		PeriodLabel:     label,
	}, p, renewing, nil
}

func (s *subscriptionService) applyRetrySuccess(ctx context.Context, id string, p *plan.Plan, scope idempotency.Scope, renewing bool) (*dto.SubscriptionResponse, error) {
	tenantID := types.GetTenantID(ctx)
	s.Locks.Lock(tenantKey(tenantID))
	defer s.Locks.Unlock(tenantKey(tenantID))

	sub, err := s.getTenantSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.SubscriptionStatus != types.SubscriptionStatusPastDue {
		// Recovered or cancelled while the gateway answered; the
		// idempotency key means no second capture happened.
		return &dto.SubscriptionResponse{Subscription: sub}, nil
	}

	if err := s.recoverPastDue(ctx, sub, p, scope, renewing); err != nil {
		return nil, err
	}

	s.Logger.Infow("settlement retry succeeded", "subscription_id", sub.ID)
	return &dto.SubscriptionResponse{Subscription: sub}, nil
}

func (s *subscriptionService) HandleSettlementWebhook(ctx context.Context, req dto.SettlementWebhookRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	// First read only resolves the owning tenant; the authoritative read
	// happens under the lock below.
	owner, err := s.SubRepo.Get(ctx, req.SubscriptionID)
	if err != nil {
		return err
	}
	webhookCtx := types.SetTenantID(ctx, owner.TenantID)

	s.Locks.Lock(tenantKey(owner.TenantID))
	defer s.Locks.Unlock(tenantKey(owner.TenantID))

	sub, err := s.SubRepo.Get(webhookCtx, req.SubscriptionID)
	if err != nil {
		return err
	}

	switch types.SettlementOutcome(req.Outcome) {
	case types.SettlementOutcomeSettled:
		if sub.SubscriptionStatus != types.SubscriptionStatusPastDue {
			// Gateways redeliver webhooks; an already recovered
			// subscription stays as it is.
			s.Logger.Debugw("ignoring settlement webhook",
				"subscription_id", sub.ID,
				"status", sub.SubscriptionStatus,
				"gateway_ref", req.GatewayRef)
			return nil
		}

		p, err := s.PlanRepo.Get(webhookCtx, sub.PlanID)
		if err != nil {
			return err
		}

		renewing := sub.RenewalDue(time.Now().UTC())
		scope := idempotency.ScopeInitialCharge
		if renewing {
			scope = idempotency.ScopeRenewal
		}
		if err := s.recoverPastDue(webhookCtx, sub, p, scope, renewing); err != nil {
			return err
		}
		s.Logger.Infow("settlement webhook recovered subscription",
			"subscription_id", sub.ID,
			"gateway_ref", req.GatewayRef)

	case types.SettlementOutcomeDeclined:
		if sub.SubscriptionStatus.IsUsable() {
			sub.SubscriptionStatus = types.SubscriptionStatusPastDue
			return s.SubRepo.Update(webhookCtx, sub)
		}
	}
	return nil
}

// recoverPastDue applies a successful settlement to a past due
// subscription: a renewal charge advances the period, an initial charge
// keeps it, and either way the paid ledger entry is issued under the
// settlement's idempotency key. Caller holds the tenant lock.
func (s *subscriptionService) recoverPastDue(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, scope idempotency.Scope, renewing bool) error {
	if renewing {
		if err := s.advancePeriod(ctx, sub, p); err != nil {
			return err
		}
		sub.TrialStart, sub.TrialEnd = nil, nil
	}
	sub.SubscriptionStatus = types.SubscriptionStatusActive
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	return s.issuePaidInvoice(ctx, sub, p, scope)
}

// advancePeriod moves the subscription to its next contiguous billing
// period: the new start is exactly the old end, so no usable time is lost
// or double-billed.
func (s *subscriptionService) advancePeriod(ctx context.Context, sub *subscription.Subscription, p *plan.Plan) error {
	newStart := sub.CurrentPeriodEnd
	newEnd, err := types.NextBillingDate(newStart, p.Interval)
	if err != nil {
		return err
	}
	sub.CurrentPeriodStart = newStart
	sub.CurrentPeriodEnd = newEnd
	return nil
}

// issuePaidInvoice writes the paid ledger entry for a settled charge,
// keyed so a crash between settlement and issuance cannot duplicate it.
func (s *subscriptionService) issuePaidInvoice(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, scope idempotency.Scope) error {
	key := s.idempGen.GenerateKey(scope, map[string]interface{}{
		"subscription_id": sub.ID,
		"period":          types.PeriodLabelFor(sub.CurrentPeriodStart).String(),
	})

	inv, err := s.invoiceSvc.Issue(ctx, &IssueInvoiceRequest{
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		AmountMinor:    p.PriceMinor,
		Currency:       p.Currency,
		Description:    p.Name,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	if inv.InvoiceStatus == types.InvoiceStatusPaid {
		return nil
	}

	_, err = s.invoiceSvc.MarkPaid(ctx, inv.ID, time.Now().UTC())
	return err
}

// getTenantSubscription loads the subscription and verifies it belongs to
// the caller's tenant.
func (s *subscriptionService) getTenantSubscription(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{
				"subscription_id": id,
			}).
			Mark(ierr.ErrNotFound)
	}
	return sub, nil
}

func tenantKey(tenantID string) string {
	return "tenant:" + tenantID
}
