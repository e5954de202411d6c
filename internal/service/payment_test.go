package service

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/testutil"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type PaymentMethodServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PaymentMethodService
}

func TestPaymentMethodService(t *testing.T) {
	suite.Run(t, new(PaymentMethodServiceSuite))
}

func (s *PaymentMethodServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.service = NewPaymentMethodService(ServiceParams{
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
	})
}

func (s *PaymentMethodServiceSuite) addRequest(token string) dto.CreatePaymentMethodRequest {
	return dto.CreatePaymentMethodRequest{
		GatewayToken: token,
		Brand:        "visa",
		Last4:        "4242",
		ExpMonth:     12,
		ExpYear:      2030,
	}
}

func (s *PaymentMethodServiceSuite) TestFirstMethodBecomesDefault() {
	first, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_1"))
	s.NoError(err)
	s.True(first.IsDefault)

	second, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_2"))
	s.NoError(err)
	s.False(second.IsDefault)
}

func (s *PaymentMethodServiceSuite) TestAddWithSetDefaultDemotesPrevious() {
	first, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_1"))
	s.Require().NoError(err)

	req := s.addRequest("tok_2")
	req.SetDefault = true
	second, err := s.service.AddPaymentMethod(s.GetContext(), req)
	s.NoError(err)
	s.True(second.IsDefault)

	reloaded, err := s.service.GetPaymentMethod(s.GetContext(), first.ID)
	s.NoError(err)
	s.False(reloaded.IsDefault)
}

func (s *PaymentMethodServiceSuite) TestSetDefaultSwitchesDefault() {
	first, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_1"))
	s.Require().NoError(err)
	second, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_2"))
	s.Require().NoError(err)

	promoted, err := s.service.SetDefault(s.GetContext(), second.ID)
	s.NoError(err)
	s.True(promoted.IsDefault)

	demoted, err := s.service.GetPaymentMethod(s.GetContext(), first.ID)
	s.NoError(err)
	s.False(demoted.IsDefault)
}

func (s *PaymentMethodServiceSuite) TestValidationRejectsBadCard() {
	req := s.addRequest("tok_bad")
	req.ExpMonth = 13
	_, err := s.service.AddPaymentMethod(s.GetContext(), req)
	s.Error(err)

	req = s.addRequest("tok_bad")
	req.Last4 = "42"
	_, err = s.service.AddPaymentMethod(s.GetContext(), req)
	s.Error(err)
}

func (s *PaymentMethodServiceSuite) TestTenantIsolation() {
	created, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_1"))
	s.Require().NoError(err)

	otherCtx := testutil.ContextForTenant("tenant-2")
	_, err = s.service.GetPaymentMethod(otherCtx, created.ID)
	s.True(ierr.IsNotFound(err))

	list, err := s.service.ListPaymentMethods(otherCtx, types.Filter{})
	s.NoError(err)
	s.Equal(0, list.Total)
}

func (s *PaymentMethodServiceSuite) TestListPaymentMethods() {
	_, err := s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_1"))
	s.Require().NoError(err)
	_, err = s.service.AddPaymentMethod(s.GetContext(), s.addRequest("tok_2"))
	s.Require().NoError(err)

	list, err := s.service.ListPaymentMethods(s.GetContext(), types.Filter{})
	s.NoError(err)
	s.Equal(2, list.Total)
}
