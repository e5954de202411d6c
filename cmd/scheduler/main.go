package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stack21app-sketch/stack21-sub003/internal/cache"
	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	stripegw "github.com/stack21app-sketch/stack21-sub003/internal/gateway/stripe"
	"github.com/stack21app-sketch/stack21-sub003/internal/lock"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/postgres"
	"github.com/stack21app-sketch/stack21-sub003/internal/repository"
	"github.com/stack21app-sketch/stack21-sub003/internal/service"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

func init() {
	time.Local = time.UTC
}

// The scheduler runs the subscription renewal batch on a cron cadence.
// It shares the service layer with the API server so renewal semantics
// live in exactly one place.
func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		panic(err)
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	gateway, err := stripegw.NewGateway(cfg, log)
	if err != nil {
		log.Fatalf("failed to initialize payment gateway: %v", err)
	}

	params := service.NewServiceParams(
		log,
		cfg,
		db,
		cache.NewInMemoryCache(cfg),
		repository.NewPlanRepository(db, log),
		repository.NewSubscriptionRepository(db, log),
		repository.NewInvoiceRepository(db, log),
		repository.NewPaymentMethodRepository(db, log),
		repository.NewUsageRepository(db, log),
		gateway,
		lock.NewKeyedMutex(),
	)
	subscriptionService := service.NewSubscriptionService(params)

	c := cron.New()
	_, err = c.AddFunc(cfg.Scheduler.RenewalCron, func() {
		ctx := context.WithValue(
			context.Background(),
			types.CtxRequestID,
			types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST),
		)

		run, err := subscriptionService.ProcessRenewals(ctx)
		if err != nil {
			log.Errorw("renewal batch failed", "error", err)
			return
		}

		log.Infow("renewal batch complete",
			"processed", run.Processed,
			"renewed", run.Renewed,
			"past_due", run.PastDue,
			"cancelled", run.Cancelled,
			"failed", run.Failed,
		)
	})
	if err != nil {
		log.Fatalf("invalid renewal cron expression %q: %v", cfg.Scheduler.RenewalCron, err)
	}

	log.Infow("scheduler started", "renewal_cron", cfg.Scheduler.RenewalCron)
	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Let an in-flight batch finish before exiting.
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}
