package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/testutil"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  SubscriptionService
	params   ServiceParams
	freePlan *plan.Plan
	paidPlan *plan.Plan
	proPlan  *plan.Plan
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		Cache:             s.GetCache(),
		PlanRepo:          stores.PlanRepo,
		SubRepo:           stores.SubscriptionRepo,
		InvoiceRepo:       stores.InvoiceRepo,
		PaymentMethodRepo: stores.PaymentMethodRepo,
		UsageRepo:         stores.UsageRepo,
		Gateway:           s.GetGateway(),
		Locks:             s.GetLocks(),
	}
	s.service = NewSubscriptionService(s.params)

	s.freePlan = s.seedPlan("free", 0, types.BillingIntervalMonth)
	s.paidPlan = s.seedPlan("starter", 2900, types.BillingIntervalMonth)
	s.proPlan = s.seedPlan("pro", 9900, types.BillingIntervalMonth)
	s.seedDefaultPaymentMethod()
}

func (s *SubscriptionServiceSuite) seedPlan(lookupKey string, priceMinor int64, interval types.BillingInterval) *plan.Plan {
	p := &plan.Plan{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		LookupKey:  lookupKey,
		Name:       lookupKey,
		PriceMinor: priceMinor,
		Currency:   "usd",
		Interval:   interval,
		Limits: plan.QuotaLimits{
			types.MeteredResourceAPICalls:  100,
			types.MeteredResourceWorkflows: types.UnlimitedQuota,
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(s.GetContext(), p))
	return p
}

func (s *SubscriptionServiceSuite) seedDefaultPaymentMethod() {
	paymentSvc := NewPaymentMethodService(s.params)
	_, err := paymentSvc.AddPaymentMethod(s.GetContext(), dto.CreatePaymentMethodRequest{
		GatewayToken: "tok_visa",
		Brand:        "visa",
		Last4:        "4242",
		ExpMonth:     12,
		ExpYear:      2030,
	})
	s.Require().NoError(err)
}

func (s *SubscriptionServiceSuite) invoiceCount(ctx context.Context) int {
	invoices, err := s.GetStores().InvoiceRepo.ListByTenant(ctx, types.GetTenantID(ctx), types.Filter{Limit: types.FilterMaxLimit})
	s.Require().NoError(err)
	return len(invoices)
}

func (s *SubscriptionServiceSuite) forceRenewalDue(sub *subscription.Subscription) *subscription.Subscription {
	stored, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	stored.CurrentPeriodStart = stored.CurrentPeriodStart.AddDate(0, -2, 0)
	stored.CurrentPeriodEnd = stored.CurrentPeriodEnd.AddDate(0, -2, 0)
	if stored.TrialEnd != nil {
		stored.TrialStart = lo.ToPtr(stored.TrialStart.AddDate(0, -2, 0))
		stored.TrialEnd = lo.ToPtr(stored.TrialEnd.AddDate(0, -2, 0))
	}
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))
	return stored
}

func (s *SubscriptionServiceSuite) TestCreateFreeSubscription() {
	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID: s.freePlan.ID,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(0, s.GetGateway().ChargeCount())
	s.Equal(0, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestCreatePaidSubscriptionCharges() {
	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID: s.paidPlan.ID,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(1, s.GetGateway().ChargeCount())

	req := s.GetGateway().Requests()[0]
	s.Equal(s.paidPlan.PriceMinor, req.AmountMinor)
	s.NotEmpty(req.IdempotencyKey)

	invoices, err := s.GetStores().InvoiceRepo.ListByTenant(s.GetContext(), types.DefaultTenantID, types.Filter{})
	s.NoError(err)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceStatusPaid, invoices[0].InvoiceStatus)
	s.Equal(s.paidPlan.PriceMinor, invoices[0].AmountMinor)
}

func (s *SubscriptionServiceSuite) TestCreateTrialSubscriptionDoesNotCharge() {
	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID:    s.paidPlan.ID,
		TrialDays: 14,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusTrialing, resp.SubscriptionStatus)
	s.Equal(0, s.GetGateway().ChargeCount())
	s.Equal(0, s.invoiceCount(s.GetContext()))
	s.Require().NotNil(resp.TrialEnd)
	s.Equal(resp.CurrentPeriodEnd, *resp.TrialEnd)
}

func (s *SubscriptionServiceSuite) TestCreateDeclinedGoesPastDue() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})

	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID: s.paidPlan.ID,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, resp.SubscriptionStatus)
	s.Equal(0, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestCreateGatewayUnreachableFailsClosed() {
	s.GetGateway().Script(
		testutil.FakeOutcome{Err: errors.New("connection reset")},
		testutil.FakeOutcome{Err: errors.New("connection reset")},
		testutil.FakeOutcome{Err: errors.New("connection reset")},
	)

	// An unreachable gateway counts as a decline once retries run out: the
	// subscription exists but is past due, and never silently active.
	resp, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID: s.paidPlan.ID,
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, resp.SubscriptionStatus)
	s.Equal(0, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestDuplicateActiveSubscriptionRejected() {
	_, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	_, err = s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCreateAfterCancelSucceeds() {
	first, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	_, err = s.service.CancelSubscription(s.GetContext(), first.ID, dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)

	second, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, second.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestCancelIsIdempotent() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	first, err := s.service.CancelSubscription(s.GetContext(), created.ID, dto.CancelSubscriptionRequest{})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, first.SubscriptionStatus)
	s.Require().NotNil(first.CancelledAt)

	second, err := s.service.CancelSubscription(s.GetContext(), created.ID, dto.CancelSubscriptionRequest{})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, second.SubscriptionStatus)
	s.Equal(*first.CancelledAt, *second.CancelledAt)
}

func (s *SubscriptionServiceSuite) TestCancelAtPeriodEndKeepsSubscriptionUsable() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	resp, err := s.service.CancelSubscription(s.GetContext(), created.ID, dto.CancelSubscriptionRequest{CancelAtPeriodEnd: true})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.True(resp.CancelAtPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestUpgradeChargesFullNewPrice() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	s.Equal(1, s.GetGateway().ChargeCount())

	resp, err := s.service.UpdateSubscription(s.GetContext(), created.ID, dto.UpdateSubscriptionRequest{PlanID: s.proPlan.ID})
	s.NoError(err)
	s.Equal(s.proPlan.ID, resp.PlanID)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)

	// Full new price, no proration credit
	requests := s.GetGateway().Requests()
	s.Require().Len(requests, 2)
	s.Equal(s.proPlan.PriceMinor, requests[1].AmountMinor)
}

func (s *SubscriptionServiceSuite) TestUpgradeDeclinedStillSwitchesPlan() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	resp, err := s.service.UpdateSubscription(s.GetContext(), created.ID, dto.UpdateSubscriptionRequest{PlanID: s.proPlan.ID})
	s.NoError(err)
	s.Equal(s.proPlan.ID, resp.PlanID)

	// The declined upgrade charge does not dun the subscription; it keeps
	// the status it had, and no invoice is written for the failed charge.
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(1, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestDowngradeToFreeDoesNotCharge() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	charges := s.GetGateway().ChargeCount()

	resp, err := s.service.UpdateSubscription(s.GetContext(), created.ID, dto.UpdateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.NoError(err)
	s.Equal(s.freePlan.ID, resp.PlanID)
	s.Equal(charges, s.GetGateway().ChargeCount())
}

func (s *SubscriptionServiceSuite) TestDowngradeToCheaperPaidPlanDoesNotCharge() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.proPlan.ID})
	s.Require().NoError(err)
	charges := s.GetGateway().ChargeCount()
	invoices := s.invoiceCount(s.GetContext())

	// Moving to a cheaper paid plan is a downgrade; only upgrades charge.
	resp, err := s.service.UpdateSubscription(s.GetContext(), created.ID, dto.UpdateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.NoError(err)
	s.Equal(s.paidPlan.ID, resp.PlanID)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(charges, s.GetGateway().ChargeCount())
	s.Equal(invoices, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestTenantLockFreeWhileChargeInFlight() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	s.Require().Equal(types.SubscriptionStatusPastDue, created.SubscriptionStatus)

	// Park the retry charge inside the gateway and make sure other tenant
	// operations are not stuck behind it.
	hold := make(chan struct{})
	s.GetGateway().Script(testutil.FakeOutcome{Hold: hold})

	before := s.GetGateway().ChargeCount()
	retryDone := make(chan struct{})
	go func() {
		defer close(retryDone)
		_, _ = s.service.RetrySettlement(s.GetContext(), created.ID)
	}()

	s.Require().Eventually(func() bool {
		return s.GetGateway().ChargeCount() > before
	}, time.Second, 5*time.Millisecond)

	cancelDone := make(chan struct{})
	go func() {
		defer close(cancelDone)
		_, err := s.service.CancelSubscription(s.GetContext(), created.ID, dto.CancelSubscriptionRequest{CancelAtPeriodEnd: true})
		s.NoError(err)
	}()

	select {
	case <-cancelDone:
	case <-time.After(500 * time.Millisecond):
		s.Fail("cancel blocked behind an in-flight charge")
	}

	close(hold)
	<-retryDone
}

func (s *SubscriptionServiceSuite) TestFreeRenewalAdvancesContiguously() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	stored := s.forceRenewalDue(created.Subscription)
	oldEnd := stored.CurrentPeriodEnd

	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(oldEnd, resp.CurrentPeriodStart)
	s.True(resp.CurrentPeriodEnd.After(oldEnd))
	s.Equal(0, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestPaidRenewalSettlesAndInvoices() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	stored := s.forceRenewalDue(created.Subscription)
	oldEnd := stored.CurrentPeriodEnd

	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(oldEnd, resp.CurrentPeriodStart)
	s.Equal(2, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestDeclinedRenewalLeavesPeriodAndLedgerUntouched() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	invoicesBefore := s.invoiceCount(s.GetContext())

	stored := s.forceRenewalDue(created.Subscription)
	oldStart := stored.CurrentPeriodStart
	oldEnd := stored.CurrentPeriodEnd

	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, resp.SubscriptionStatus)
	s.Equal(oldStart, resp.CurrentPeriodStart)
	s.Equal(oldEnd, resp.CurrentPeriodEnd)
	s.Equal(invoicesBefore, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestRenewalGatewayUnreachableGoesPastDue() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	invoicesBefore := s.invoiceCount(s.GetContext())

	stored := s.forceRenewalDue(created.Subscription)
	oldStart := stored.CurrentPeriodStart
	oldEnd := stored.CurrentPeriodEnd

	s.GetGateway().Script(
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
	)

	// The batch must never leave a subscription active on an infra fault;
	// exhausted retries are a decline.
	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, resp.SubscriptionStatus)
	s.Equal(oldStart, resp.CurrentPeriodStart)
	s.Equal(oldEnd, resp.CurrentPeriodEnd)
	s.Equal(invoicesBefore, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestRenewalCancelsAtPeriodEnd() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	_, err = s.service.CancelSubscription(s.GetContext(), created.ID, dto.CancelSubscriptionRequest{CancelAtPeriodEnd: true})
	s.Require().NoError(err)

	stored := s.forceRenewalDue(created.Subscription)
	charges := s.GetGateway().ChargeCount()

	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, resp.SubscriptionStatus)
	s.NotNil(resp.CancelledAt)
	s.Equal(charges, s.GetGateway().ChargeCount())
}

func (s *SubscriptionServiceSuite) TestTrialConversionChargesAtTrialEnd() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{
		PlanID:    s.paidPlan.ID,
		TrialDays: 7,
	})
	s.Require().NoError(err)

	stored := s.forceRenewalDue(created.Subscription)

	resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Nil(resp.TrialEnd)
	s.Equal(1, s.GetGateway().ChargeCount())
	s.Equal(1, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestRenewalIdempotencyKeyStableAcrossRetries() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	stored := s.forceRenewalDue(created.Subscription)

	s.GetGateway().Script(
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
	)
	failed, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
	s.Require().NoError(err)
	s.Require().Equal(types.SubscriptionStatusPastDue, failed.SubscriptionStatus)

	recovered, err := s.service.RetrySettlement(s.GetContext(), stored.ID)
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, recovered.SubscriptionStatus)

	requests := s.GetGateway().Requests()
	// One create charge plus the renewal attempts; the retry re-derives
	// the same key as the failed renewal
	renewalKey := requests[len(requests)-1].IdempotencyKey
	for _, req := range requests[1:] {
		s.Equal(renewalKey, req.IdempotencyKey)
	}
}

func (s *SubscriptionServiceSuite) TestProcessRenewalsBatch() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	otherCtx := testutil.ContextForTenant("tenant-2")
	otherSvc := NewSubscriptionService(s.params)
	paymentSvc := NewPaymentMethodService(s.params)
	_, err = paymentSvc.AddPaymentMethod(otherCtx, dto.CreatePaymentMethodRequest{
		GatewayToken: "tok_mastercard",
		Brand:        "mastercard",
		Last4:        "4444",
		ExpMonth:     6,
		ExpYear:      2031,
	})
	s.Require().NoError(err)
	other, err := otherSvc.CreateSubscription(otherCtx, dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	s.forceRenewalDue(created.Subscription)

	otherStored, err := s.GetStores().SubscriptionRepo.Get(otherCtx, other.ID)
	s.Require().NoError(err)
	otherStored.CurrentPeriodStart = otherStored.CurrentPeriodStart.AddDate(0, -2, 0)
	otherStored.CurrentPeriodEnd = otherStored.CurrentPeriodEnd.AddDate(0, -2, 0)
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(otherCtx, otherStored))

	resp, err := s.service.ProcessRenewals(context.Background())
	s.NoError(err)
	s.Equal(2, resp.Processed)
	s.Equal(2, resp.Renewed)
	s.Equal(0, resp.Failed)
}

func (s *SubscriptionServiceSuite) TestRetrySettlementRecoversPastDue() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	s.Require().Equal(types.SubscriptionStatusPastDue, created.SubscriptionStatus)

	resp, err := s.service.RetrySettlement(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.SubscriptionStatus)
	s.Equal(1, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestRetrySettlementDeclinedAgain() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	_, err = s.service.RetrySettlement(s.GetContext(), created.ID)
	s.Error(err)
	s.True(ierr.IsPaymentDeclined(err))

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
	s.Equal(0, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestRetrySettlementRejectsActiveSubscription() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	_, err = s.service.RetrySettlement(s.GetContext(), created.ID)
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrInvalidOperation))
}

func (s *SubscriptionServiceSuite) TestSettlementWebhookRecoversPastDue() {
	// A declined initial charge leaves a past due subscription and no
	// invoice; the webhook alone must be enough to recover it.
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)
	s.Require().Equal(types.SubscriptionStatusPastDue, created.SubscriptionStatus)
	s.Require().Equal(0, s.invoiceCount(s.GetContext()))

	err = s.service.HandleSettlementWebhook(context.Background(), dto.SettlementWebhookRequest{
		SubscriptionID: created.ID,
		Outcome:        "settled",
		GatewayRef:     "pi_123",
	})
	s.NoError(err)

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)

	invoices, err := s.GetStores().InvoiceRepo.ListByTenant(s.GetContext(), types.DefaultTenantID, types.Filter{})
	s.NoError(err)
	s.Require().Len(invoices, 1)
	s.Equal(types.InvoiceStatusPaid, invoices[0].InvoiceStatus)
}

func (s *SubscriptionServiceSuite) TestSettlementWebhookRedeliveryIsNoOp() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	event := dto.SettlementWebhookRequest{
		SubscriptionID: created.ID,
		Outcome:        "settled",
		GatewayRef:     "pi_123",
	}
	s.Require().NoError(s.service.HandleSettlementWebhook(context.Background(), event))
	s.Require().NoError(s.service.HandleSettlementWebhook(context.Background(), event))

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.Equal(1, s.invoiceCount(s.GetContext()))
}

func (s *SubscriptionServiceSuite) TestDeclinedWebhookMovesActiveToPastDue() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	err = s.service.HandleSettlementWebhook(context.Background(), dto.SettlementWebhookRequest{
		SubscriptionID: created.ID,
		Outcome:        "declined",
		GatewayRef:     "pi_456",
	})
	s.NoError(err)

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPastDue, sub.SubscriptionStatus)
}

func (s *SubscriptionServiceSuite) TestWebhookAppliesToStateWrittenDuringDelivery() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	// Hold the tenant lock so the webhook has to wait, then move the
	// subscription forward a version before letting it in. The webhook
	// must work from the state it reads under the lock, not from a copy
	// taken before it.
	key := "tenant:" + types.DefaultTenantID
	s.GetLocks().Lock(key)

	done := make(chan error, 1)
	go func() {
		done <- s.service.HandleSettlementWebhook(context.Background(), dto.SettlementWebhookRequest{
			SubscriptionID: created.ID,
			Outcome:        "settled",
			GatewayRef:     "pi_789",
		})
	}()

	time.Sleep(50 * time.Millisecond)
	stored, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.Require().NoError(err)
	stored.CancelAtPeriodEnd = true
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), stored))
	s.GetLocks().Unlock(key)

	s.Require().NoError(<-done)

	sub, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, sub.SubscriptionStatus)
	s.True(sub.CancelAtPeriodEnd)
}

func (s *SubscriptionServiceSuite) TestGetActiveSubscription() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	resp, err := s.service.GetActiveSubscription(s.GetContext())
	s.NoError(err)
	s.Equal(created.ID, resp.ID)
}

func (s *SubscriptionServiceSuite) TestListSubscriptionsIncludesTerminal() {
	first, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)
	_, err = s.service.CancelSubscription(s.GetContext(), first.ID, dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)
	_, err = s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.paidPlan.ID})
	s.Require().NoError(err)

	resp, err := s.service.ListSubscriptions(s.GetContext(), types.Filter{})
	s.NoError(err)
	s.Equal(2, resp.Total)
}

func (s *SubscriptionServiceSuite) TestVersionConflictOnStaleUpdate() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	stale, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.Require().NoError(err)

	fresh, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), created.ID)
	s.Require().NoError(err)
	fresh.CancelAtPeriodEnd = true
	s.Require().NoError(s.GetStores().SubscriptionRepo.Update(s.GetContext(), fresh))

	stale.CancelAtPeriodEnd = false
	err = s.GetStores().SubscriptionRepo.Update(s.GetContext(), stale)
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrVersionConflict))
}

func (s *SubscriptionServiceSuite) TestPeriodsStayContiguousAcrossRenewals() {
	created, err := s.service.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.freePlan.ID})
	s.Require().NoError(err)

	var previousEnd time.Time
	current := created.Subscription
	for i := 0; i < 3; i++ {
		stored := s.forceRenewalDue(current)
		previousEnd = stored.CurrentPeriodEnd

		resp, err := s.service.ProcessRenewal(s.GetContext(), stored.ID)
		s.Require().NoError(err)
		s.Equal(previousEnd, resp.CurrentPeriodStart)
		current = resp.Subscription
	}
}
