package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stack21app-sketch/stack21-sub003/internal/api/dto"
	ierr "github.com/stack21app-sketch/stack21-sub003/internal/errors"
	"github.com/stack21app-sketch/stack21-sub003/internal/logger"
	"github.com/stack21app-sketch/stack21-sub003/internal/service"
	"github.com/stack21app-sketch/stack21-sub003/internal/types"
)

type UsageHandler struct {
	service service.UsageService
	log     *logger.Logger
}

func NewUsageHandler(service service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{service: service, log: log}
}

// @Summary Check quota
// @Description Answer whether the given amount fits in the remaining quota without recording it
// @Tags Usage
// @Produce json
// @Param resource query string true "Metered resource"
// @Param amount query int false "Amount to check, defaults to 1"
// @Success 200 {object} dto.CheckLimitResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage/check [get]
func (h *UsageHandler) CheckLimit(c *gin.Context) {
	resource := types.MeteredResource(c.Query("resource"))

	amount := int64(1)
	if raw := c.Query("amount"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.Error(ierr.WithError(err).
				WithHint("amount must be an integer").
				Mark(ierr.ErrValidation))
			return
		}
		amount = parsed
	}

	resp, err := h.service.CheckLimit(c.Request.Context(), resource, amount)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Record usage
// @Description Add usage to the current period's counter without quota enforcement
// @Tags Usage
// @Accept json
// @Produce json
// @Param usage body dto.RecordUsageRequest true "Usage to record"
// @Success 200 {object} dto.UsageRecordResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /usage [post]
func (h *UsageHandler) Record(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Record(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Check and record usage
// @Description Atomically check the quota and record the usage; rejects when it would exceed the limit
// @Tags Usage
// @Accept json
// @Produce json
// @Param usage body dto.RecordUsageRequest true "Usage to record"
// @Success 200 {object} dto.UsageRecordResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 403 {object} ierr.ErrorResponse
// @Router /usage/check-and-record [post]
func (h *UsageHandler) CheckAndRecord(c *gin.Context) {
	var req dto.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CheckAndRecord(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Current usage
// @Description Get the tenant's usage counters for the current period
// @Tags Usage
// @Produce json
// @Success 200 {object} dto.UsageRecordResponse
// @Router /usage/current [get]
func (h *UsageHandler) GetCurrentUsage(c *gin.Context) {
	resp, err := h.service.GetCurrentUsage(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Usage history
// @Description List the tenant's usage records, newest period first
// @Tags Usage
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.ListUsageResponse
// @Router /usage/history [get]
func (h *UsageHandler) ListUsage(c *gin.Context) {
	var filter types.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListUsage(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
