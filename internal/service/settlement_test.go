package service

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/idempotency"
	"github.com/stack21app-sketch/stack21-sub003/internal/testutil"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type SettlementServiceSuite struct {
	testutil.BaseServiceTestSuite
	service SettlementService
	params  ServiceParams
}

func TestSettlementService(t *testing.T) {
	suite.Run(t, new(SettlementServiceSuite))
}

func (s *SettlementServiceSuite) SetupTest() {
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
	s.service = NewSettlementService(s.params)

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

func (s *SettlementServiceSuite) settleRequest() *SettleRequest {
	return &SettleRequest{
		TenantID:       types.DefaultTenantID,
		SubscriptionID: "subs_test",
		AmountMinor:    2900,
		Currency:       "usd",
		Description:    "starter",
		Scope:          idempotency.ScopeRenewal,
		PeriodLabel:    types.PeriodLabel("2026-08"),
	}
}

func (s *SettlementServiceSuite) TestSettleSucceeds() {
	result, err := s.service.Settle(s.GetContext(), s.settleRequest())
	s.NoError(err)
	s.Equal(types.SettlementOutcomeSettled, result.Outcome)
	s.NotEmpty(result.GatewayRef)

	req := s.GetGateway().Requests()[0]
	s.Equal("tok_visa", req.GatewayToken)
	s.Equal(int64(2900), req.AmountMinor)
}

func (s *SettlementServiceSuite) TestDeclineIsFinalNotRetried() {
	s.GetGateway().Script(testutil.FakeOutcome{Decline: true})

	result, err := s.service.Settle(s.GetContext(), s.settleRequest())
	s.NoError(err)
	s.Equal(types.SettlementOutcomeDeclined, result.Outcome)
	s.Equal(1, s.GetGateway().ChargeCount())
}

func (s *SettlementServiceSuite) TestInfraFaultRetriedThenSucceeds() {
	s.GetGateway().Script(
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
	)

	result, err := s.service.Settle(s.GetContext(), s.settleRequest())
	s.NoError(err)
	s.Equal(types.SettlementOutcomeSettled, result.Outcome)
	s.Equal(3, s.GetGateway().ChargeCount())
}

func (s *SettlementServiceSuite) TestRetriesExhaustedFailsClosed() {
	s.GetGateway().Script(
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
		testutil.FakeOutcome{Err: errors.New("timeout")},
	)

	// An unreachable gateway is indistinguishable from a decline once the
	// retry budget runs out; the caller must never treat it as settled.
	result, err := s.service.Settle(s.GetContext(), s.settleRequest())
	s.NoError(err)
	s.Equal(types.SettlementOutcomeDeclined, result.Outcome)
	s.Equal("gateway_unreachable", result.FailureReason)
	s.Equal(3, s.GetGateway().ChargeCount())
}

func (s *SettlementServiceSuite) TestIdempotencyKeyDeterministic() {
	_, err := s.service.Settle(s.GetContext(), s.settleRequest())
	s.Require().NoError(err)
	_, err = s.service.Settle(s.GetContext(), s.settleRequest())
	s.Require().NoError(err)

	requests := s.GetGateway().Requests()
	s.Require().Len(requests, 2)
	s.Equal(requests[0].IdempotencyKey, requests[1].IdempotencyKey)

	// A different period derives a different key
	other := s.settleRequest()
	other.PeriodLabel = types.PeriodLabel("2026-09")
	_, err = s.service.Settle(s.GetContext(), other)
	s.Require().NoError(err)
	s.NotEqual(requests[0].IdempotencyKey, s.GetGateway().Requests()[2].IdempotencyKey)
}

func (s *SettlementServiceSuite) TestSettleWithoutPaymentMethodFails() {
	req := s.settleRequest()
	req.TenantID = "tenant-without-method"
	ctx := testutil.ContextForTenant(req.TenantID)

	_, err := s.service.Settle(ctx, req)
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrInvalidOperation))
}

func (s *SettlementServiceSuite) TestSettleWithExplicitMethod() {
	paymentSvc := NewPaymentMethodService(s.params)
	added, err := paymentSvc.AddPaymentMethod(s.GetContext(), dto.CreatePaymentMethodRequest{
		GatewayToken: "tok_amex",
		Brand:        "amex",
		Last4:        "0005",
		ExpMonth:     3,
		ExpYear:      2031,
	})
	s.Require().NoError(err)

	req := s.settleRequest()
	req.PaymentMethodID = &added.ID

	_, err = s.service.Settle(s.GetContext(), req)
	s.NoError(err)
	s.Equal("tok_amex", s.GetGateway().Requests()[0].GatewayToken)
}
