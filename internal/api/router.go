package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/cron"
	v1 "github.com/stack21app-sketch/stack21-sub003/internal/api/v1"
	"github.com/stack21app-sketch/stack21-sub003/internal/config"
	"github.com/stack21app-sketch/stack21-sub003/internal/rest/middleware"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type Handlers struct {
	Plan          *v1.PlanHandler
	Subscription  *v1.SubscriptionHandler
	Invoice       *v1.InvoiceHandler
	Usage         *v1.UsageHandler
	PaymentMethod *v1.PaymentMethodHandler
	Webhook       *v1.WebhookHandler
	CronSub       *cron.SubscriptionHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration) *gin.Engine {
	if cfg.Deployment.Mode == types.ModeProd {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.ErrorHandler(),
	)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Webhooks authenticate via gateway signatures, not tenant headers
	webhooks := router.Group("/v1/webhooks")
	{
		webhooks.POST("/settlement", handlers.Webhook.HandleSettlement)
	}

	v1Group := router.Group("/v1", middleware.TenantMiddleware)
	registerV1Routes(v1Group, handlers)

	// Cron routes are called by the scheduler, not tenants
	cronGroup := router.Group("/cron")
	{
		cronGroup.POST("/subscriptions/renew", handlers.CronSub.ProcessRenewals)
	}

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	plans := router.Group("/plans")
	{
		plans.GET("", handlers.Plan.ListPlans)
		plans.GET("/:id", handlers.Plan.GetPlan)
	}

	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateSubscription)
		subscriptions.GET("", handlers.Subscription.ListSubscriptions)
		subscriptions.GET("/active", handlers.Subscription.GetActiveSubscription)
		subscriptions.GET("/:id", handlers.Subscription.GetSubscription)
		subscriptions.PUT("/:id", handlers.Subscription.UpdateSubscription)
		subscriptions.POST("/:id/cancel", handlers.Subscription.CancelSubscription)
		subscriptions.POST("/:id/retry", handlers.Subscription.RetrySettlement)
	}

	invoices := router.Group("/invoices")
	{
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
	}

	usage := router.Group("/usage")
	{
		usage.POST("", handlers.Usage.Record)
		usage.GET("/check", handlers.Usage.CheckLimit)
		usage.POST("/check-and-record", handlers.Usage.CheckAndRecord)
		usage.GET("/current", handlers.Usage.GetCurrentUsage)
		usage.GET("/history", handlers.Usage.ListUsage)
	}

	paymentMethods := router.Group("/payment-methods")
	{
		paymentMethods.POST("", handlers.PaymentMethod.AddPaymentMethod)
		paymentMethods.GET("", handlers.PaymentMethod.ListPaymentMethods)
		paymentMethods.POST("/:id/default", handlers.PaymentMethod.SetDefault)
	}
}
