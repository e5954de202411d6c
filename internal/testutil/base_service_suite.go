package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stack21app-sketch/stack21-sub003/internal/cache"
	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	"github.com/stack21app-sketch/stack21-sub003/internal/lock"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	PlanRepo          plan.Repository
	SubscriptionRepo  subscription.Repository
	InvoiceRepo       invoice.Repository
	PaymentMethodRepo payment.Repository
	UsageRepo         usage.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	stores  Stores
	gateway *FakeGateway
	cache   cache.Cache
	locks   *lock.KeyedMutex
	logger  *logger.Logger
	config  *config.Configuration
	now     time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Settlement.Timeout = time.Second
	cfg.Settlement.MaxRetries = 2
	cfg.Settlement.InitialInterval = time.Millisecond

	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.stores = Stores{
		PlanRepo:          NewInMemoryPlanStore(),
		SubscriptionRepo:  NewInMemorySubscriptionStore(),
		InvoiceRepo:       NewInMemoryInvoiceStore(),
		PaymentMethodRepo: NewInMemoryPaymentMethodStore(),
		UsageRepo:         NewInMemoryUsageStore(),
	}
	s.gateway = NewFakeGateway()
	s.cache = cache.NewInMemoryCache(s.config)
	s.locks = lock.NewKeyedMutex()
	s.now = time.Now().UTC()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

func (s *BaseServiceTestSuite) GetLocks() *lock.KeyedMutex {
	return s.locks
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}

func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
