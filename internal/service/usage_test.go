package service

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/testutil"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service UsageService
	params  ServiceParams
	plan    *plan.Plan
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
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
	s.service = NewUsageService(s.params)

	s.plan = &plan.Plan{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		LookupKey: "metered",
		Name:      "metered",
		Currency:  "usd",
		Interval:  types.BillingIntervalMonth,
		Limits: plan.QuotaLimits{
			types.MeteredResourceAPICalls:  100,
			types.MeteredResourceWorkflows: types.UnlimitedQuota,
			types.MeteredResourceMembers:   5,
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().PlanRepo.Create(s.GetContext(), s.plan))

	subSvc := NewSubscriptionService(s.params)
	_, err := subSvc.CreateSubscription(s.GetContext(), dto.CreateSubscriptionRequest{PlanID: s.plan.ID})
	s.Require().NoError(err)
}

func (s *UsageServiceSuite) TestRecordAccumulates() {
	for i := 0; i < 3; i++ {
		_, err := s.service.Record(s.GetContext(), dto.RecordUsageRequest{
			Resource: types.MeteredResourceAPICalls,
			Amount:   5,
		})
		s.Require().NoError(err)
	}

	resp, err := s.service.GetCurrentUsage(s.GetContext())
	s.NoError(err)
	s.Equal(int64(15), resp.APICalls)
}

func (s *UsageServiceSuite) TestRecordRejectsNegativeAmount() {
	_, err := s.service.Record(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceAPICalls,
		Amount:   -5,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrValidation))
}

func (s *UsageServiceSuite) TestRecordRejectsUnknownResource() {
	_, err := s.service.Record(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResource("gpu_hours"),
		Amount:   1,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrValidation))
}

func (s *UsageServiceSuite) TestCheckLimitWithinQuota() {
	_, err := s.service.Record(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceAPICalls,
		Amount:   95,
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckLimit(s.GetContext(), types.MeteredResourceAPICalls, 5)
	s.NoError(err)
	s.True(resp.Allowed)
	s.Equal(int64(95), resp.Used)
	s.Equal(int64(100), resp.Limit)

	resp, err = s.service.CheckLimit(s.GetContext(), types.MeteredResourceAPICalls, 6)
	s.NoError(err)
	s.False(resp.Allowed)
}

func (s *UsageServiceSuite) TestUnlimitedResourceAlwaysAllowed() {
	_, err := s.service.Record(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceWorkflows,
		Amount:   1_000_000,
	})
	s.Require().NoError(err)

	resp, err := s.service.CheckLimit(s.GetContext(), types.MeteredResourceWorkflows, 1_000_000)
	s.NoError(err)
	s.True(resp.Allowed)
	s.Equal(types.UnlimitedQuota, resp.Limit)

	_, err = s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceWorkflows,
		Amount:   1_000_000,
	})
	s.NoError(err)
}

func (s *UsageServiceSuite) TestCheckAndRecordEnforcesQuota() {
	_, err := s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceMembers,
		Amount:   5,
	})
	s.Require().NoError(err)

	_, err = s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceMembers,
		Amount:   1,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrQuotaExceeded))

	// The rejected call must not have recorded anything
	resp, err := s.service.GetCurrentUsage(s.GetContext())
	s.NoError(err)
	s.Equal(int64(5), resp.Members)
}

func (s *UsageServiceSuite) TestConcurrentCheckAndRecordNeverOverruns() {
	const workers = 20

	var wg sync.WaitGroup
	allowed := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
				Resource: types.MeteredResourceMembers,
				Amount:   1,
			})
			if err == nil {
				allowed <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(allowed)

	s.Equal(5, len(allowed))

	resp, err := s.service.GetCurrentUsage(s.GetContext())
	s.NoError(err)
	s.Equal(int64(5), resp.Members)
}

func (s *UsageServiceSuite) TestMissingResourceLimitMeansZeroQuota() {
	_, err := s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceAICredits,
		Amount:   1,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrQuotaExceeded))
}

func (s *UsageServiceSuite) TestUsageRequiresUsableSubscription() {
	otherCtx := testutil.ContextForTenant("tenant-without-subscription")
	_, err := s.service.Record(otherCtx, dto.RecordUsageRequest{
		Resource: types.MeteredResourceAPICalls,
		Amount:   1,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrInvalidOperation))
}

func (s *UsageServiceSuite) TestLazyRolloverStartsFreshRecord() {
	// Seed a counter from a previous period directly in the store
	previous := types.PeriodLabel("2020-01")
	base := types.GetDefaultBaseModel(s.GetContext())
	rec := usage.NewRecord(types.DefaultTenantID, previous, base)
	rec.APICalls = 99
	s.Require().NoError(s.GetStores().UsageRepo.Create(s.GetContext(), rec))

	// First touch of the current period starts from zero
	resp, err := s.service.CheckAndRecord(s.GetContext(), dto.RecordUsageRequest{
		Resource: types.MeteredResourceAPICalls,
		Amount:   10,
	})
	s.NoError(err)
	s.Equal(int64(10), resp.APICalls)
	s.Equal(types.CurrentPeriodLabel(), resp.PeriodLabel)

	// The old period's record survives as history
	old, err := s.GetStores().UsageRepo.GetByTenantAndPeriod(s.GetContext(), types.DefaultTenantID, previous)
	s.NoError(err)
	s.Equal(int64(99), old.APICalls)

	history, err := s.service.ListUsage(s.GetContext(), types.Filter{})
	s.NoError(err)
	s.Equal(2, history.Total)
	s.Equal(types.CurrentPeriodLabel(), history.Items[0].PeriodLabel)
}

func (s *UsageServiceSuite) TestGetCurrentUsageEmptyByDefault() {
	resp, err := s.service.GetCurrentUsage(s.GetContext())
	s.NoError(err)
	s.Equal(int64(0), resp.APICalls)
	s.Equal(types.CurrentPeriodLabel(), resp.PeriodLabel)
}
