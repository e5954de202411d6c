package service

import (
	"github.com/stack21app-sketch/stack21-sub003/internal/cache"
	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	"github.com/stack21app-sketch/stack21-sub003/internal/lock"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     *postgres.DB
	Cache  cache.Cache

	// Repositories
	PlanRepo          plan.Repository
	SubRepo           subscription.Repository
	InvoiceRepo       invoice.Repository
	PaymentMethodRepo payment.Repository
	UsageRepo         usage.Repository

	// Gateway is the payment gateway boundary; production wires Stripe,
	// tests wire a deterministic fake.
	Gateway payment.Gateway

	// Locks serializes subscription mutations per tenant and usage
	// recording per (tenant, resource).
	Locks *lock.KeyedMutex
}

// NewServiceParams assembles the shared dependency bundle consumed by
// every service constructor.
func NewServiceParams(
	logger *logger.Logger,
	cfg *config.Configuration,
	db *postgres.DB,
	cacheClient cache.Cache,
	planRepo plan.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	paymentMethodRepo payment.Repository,
	usageRepo usage.Repository,
	gateway payment.Gateway,
	locks *lock.KeyedMutex,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            cfg,
		DB:                db,
		Cache:             cacheClient,
		PlanRepo:          planRepo,
		SubRepo:           subRepo,
		InvoiceRepo:       invoiceRepo,
		PaymentMethodRepo: paymentMethodRepo,
		UsageRepo:         usageRepo,
		Gateway:           gateway,
		Locks:             locks,
	}
}
