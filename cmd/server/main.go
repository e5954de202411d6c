package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/stack21app-sketch/stack21-sub003/internal/api"
	"github.com/stack21app-sketch/stack21-sub003/internal/api/cron"
	v1 "github.com/stack21app-sketch/stack21-sub003/internal/api/v1"
	"github.com/stack21app-sketch/stack21-sub003/internal/cache"
	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	"github.com/stack21app-sketch/stack21-sub003/internal/domain/payment"
	stripegw "github.com/stack21app-sketch/stack21-sub003/internal/gateway/stripe"
	"github.com/stack21app-sketch/stack21-sub003/internal/lock"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
	"github.com/stack21app-sketch/stack21-sub003/internal/repository"
	"github.com/stack21app-sketch/stack21-sub003/internal/service"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
	"github.com/stack21app-sketch/stack21-sub003/internal/validator"
)

// @title Stack21 Billing API
// @version 1.0
// @description Subscription and usage metering billing service
// @BasePath /v1
// @schemes http https

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,

			// Locks
			lock.NewKeyedMutex,

			// Repositories
			repository.NewPlanRepository,
			repository.NewSubscriptionRepository,
			repository.NewInvoiceRepository,
			repository.NewPaymentMethodRepository,
			repository.NewUsageRepository,

			// Payment gateway
			provideGateway,

			// Services
			service.NewServiceParams,
			service.NewSettlementService,
			service.NewPlanService,
			service.NewSubscriptionService,
			service.NewInvoiceService,
			service.NewUsageService,
			service.NewPaymentMethodService,

			// API
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			seedCatalog,
			startServer,
		),
	)
	app.Run()
}

func provideGateway(cfg *config.Configuration, log *logger.Logger) (payment.Gateway, error) {
	return stripegw.NewGateway(cfg, log)
}

func provideHandlers(
	log *logger.Logger,
	planService service.PlanService,
	subscriptionService service.SubscriptionService,
	invoiceService service.InvoiceService,
	usageService service.UsageService,
	paymentMethodService service.PaymentMethodService,
) api.Handlers {
	return api.Handlers{
		Plan:          v1.NewPlanHandler(planService, log),
		Subscription:  v1.NewSubscriptionHandler(subscriptionService, log),
		Invoice:       v1.NewInvoiceHandler(invoiceService, log),
		Usage:         v1.NewUsageHandler(usageService, log),
		PaymentMethod: v1.NewPaymentMethodHandler(paymentMethodService, log),
		Webhook:       v1.NewWebhookHandler(subscriptionService, log),
		CronSub:       cron.NewSubscriptionHandler(subscriptionService, log),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration) *gin.Engine {
	return api.NewRouter(handlers, cfg)
}

// seedCatalog loads the plan catalog on startup. Seeding is idempotent:
// plans whose lookup key already exists are skipped.
func seedCatalog(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	planService service.PlanService,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Catalog.SeedFile == "" {
				return nil
			}
			seedCtx := types.SetTenantID(ctx, types.DefaultTenantID)
			if err := planService.SeedFromFile(seedCtx, cfg.Catalog.SeedFile); err != nil {
				log.Errorw("plan catalog seeding failed",
					"file", cfg.Catalog.SeedFile,
					"error", err,
				)
				return err
			}
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *postgres.DB,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			db.Close()
			return nil
		},
	})
}
