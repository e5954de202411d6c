package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/service"
)

// WebhookHandler receives asynchronous settlement outcomes from the
// payment gateway. Webhooks carry no tenant header; the tenant is resolved
// from the referenced subscription.
type WebhookHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewWebhookHandler(service service.SubscriptionService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// @Summary Settlement webhook
// @Description Apply an asynchronous settlement outcome to a subscription
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param event body dto.SettlementWebhookRequest true "Settlement event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/settlement [post]
func (h *WebhookHandler) HandleSettlement(c *gin.Context) {
	var req dto.SettlementWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.service.HandleSettlementWebhook(c.Request.Context(), req); err != nil {
		h.log.Errorw("failed to process settlement webhook",
			"subscription_id", req.SubscriptionID,
			"outcome", req.Outcome,
			"error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
