package repository

import (
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/invoice"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/plan"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/subscription"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/usage"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
	postgresRepo "github.com/stack21app-sketch/stack21-sub003/internal/repository/postgres"
)

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return postgresRepo.NewPlanRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return postgresRepo.NewInvoiceRepository(db, logger)
}

func NewPaymentMethodRepository(db *postgres.DB, logger *logger.Logger) payment.Repository {
	return postgresRepo.NewPaymentMethodRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}
