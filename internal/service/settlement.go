package service

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/idempotency"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

// SettlementService drives charge attempts against the payment gateway.
// It resolves the payment method, bounds each attempt with the configured
// timeout, and retries infrastructure faults with exponential backoff.
// Declines are never retried; they are a final business answer.
type SettlementService interface {
	// Settle charges the tenant for amountMinor under the given idempotency
	// scope. A Declined result comes back with a nil error. Infrastructure
	// faults that survive the retry budget also come back as Declined, so
	// an unreachable gateway fails closed instead of leaving the caller
	// without an answer; the stable idempotency key keeps a later retry of
	// the same (scope, subscription, period) safe. Only a cancelled caller
	// context surfaces as an error, marked ErrGateway.
	Settle(ctx context.Context, req *SettleRequest) (*payment.ChargeResult, error)
}

// SettleRequest is the service-level charge request before payment method
// resolution and idempotency key derivation.
type SettleRequest struct {
	TenantID        string
	SubscriptionID  string
	PaymentMethodID *string
	AmountMinor     int64
	Currency        string
	Description     string

	// Scope and PeriodLabel derive the idempotency key: the same
	// (scope, subscription, period) always charges under the same key.
	Scope       idempotency.Scope
	PeriodLabel types.PeriodLabel
}

type settlementService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

func NewSettlementService(params ServiceParams) SettlementService {
	return &settlementService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *settlementService) Settle(ctx context.Context, req *SettleRequest) (*payment.ChargeResult, error) {
	method, err := s.resolvePaymentMethod(ctx, req.TenantID, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	key := s.idempGen.GenerateKey(req.Scope, map[string]interface{}{
		"subscription_id": req.SubscriptionID,
		"period":          req.PeriodLabel.String(),
	})

	chargeReq := &payment.ChargeRequest{
		TenantID:        req.TenantID,
		PaymentMethodID: &method.ID,
		GatewayToken:    method.GatewayToken,
		AmountMinor:     req.AmountMinor,
		Currency:        req.Currency,
		IdempotencyKey:  key,
		Description:     req.Description,
	}

	var result *payment.ChargeResult
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.Config.Settlement.Timeout)
		defer cancel()

		res, err := s.Gateway.Charge(attemptCtx, chargeReq)
		if err != nil {
			if ctx.Err() != nil {
				// Outer context is gone, no point retrying
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(s.Config.Settlement.InitialInterval),
		),
		s.Config.Settlement.MaxRetries,
	)

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ierr.WithError(err).
				WithHint("The charge was abandoned before the gateway answered").
				WithReportableDetails(map[string]interface{}{
					"subscription_id": req.SubscriptionID,
					"idempotency_key": key,
				}).
				Mark(ierr.ErrGateway)
		}

		// Retry budget spent: fail closed. The caller treats this like any
		// other decline and parks the subscription in past due rather than
		// leaving it silently active on an unknown outcome.
		s.Logger.Errorw("settlement attempts exhausted, failing closed",
			"tenant_id", req.TenantID,
			"subscription_id", req.SubscriptionID,
			"idempotency_key", key,
			"error", err)
		return &payment.ChargeResult{
			Outcome:       types.SettlementOutcomeDeclined,
			FailureReason: "gateway_unreachable",
		}, nil
	}

	s.Logger.Infow("settlement resolved",
		"tenant_id", req.TenantID,
		"subscription_id", req.SubscriptionID,
		"outcome", result.Outcome,
		"gateway_ref", result.GatewayRef,
		"idempotency_key", key)
	return result, nil
}

// resolvePaymentMethod returns the explicit method when given, otherwise
// the tenant's default.
func (s *settlementService) resolvePaymentMethod(ctx context.Context, tenantID string, methodID *string) (*payment.PaymentMethod, error) {
	if methodID != nil && *methodID != "" {
		method, err := s.PaymentMethodRepo.Get(ctx, *methodID)
		if err != nil {
			return nil, err
		}
		if method.TenantID != tenantID {
			return nil, ierr.NewError("payment method belongs to another tenant").
				WithHint("Payment method not found").
				Mark(ierr.ErrNotFound)
		}
		return method, nil
	}

	method, err := s.PaymentMethodRepo.GetDefaultByTenant(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, ierr.NewError("no payment method on file").
				WithHint("Add a payment method before subscribing to a paid plan").
				Mark(ierr.ErrInvalidOperation)
		}
		return nil, err
	}
	return method, nil
}
