package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/service"
)

// SubscriptionHandler handles subscription related cron jobs
type SubscriptionHandler struct {
	subscriptionService service.SubscriptionService
	logger              *logger.Logger
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptionService service.SubscriptionService, logger *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// ProcessRenewals runs the renewal batch over every subscription whose
// billing period has elapsed.
func (h *SubscriptionHandler) ProcessRenewals(c *gin.Context) {
	h.logger.Infow("starting renewal cron job")

	response, err := h.subscriptionService.ProcessRenewals(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to process renewals", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed renewal cron job",
		"processed", response.Processed,
		"renewed", response.Renewed,
		"past_due", response.PastDue,
		"cancelled", response.Cancelled,
		"failed", response.Failed)
	c.JSON(http.StatusOK, response)
}
