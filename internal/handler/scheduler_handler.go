package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetdesk/custody-api/internal/dto"
	"github.com/fleetdesk/custody-api/pkg/response"
)

type schedulerRunner interface {
	Run(ctx context.Context) *dto.SchedulerReport
}

// SchedulerHandler exposes manual reconciliation triggers.
type SchedulerHandler struct {
	scheduler schedulerRunner
}

// NewSchedulerHandler constructs a scheduler handler.
func NewSchedulerHandler(scheduler schedulerRunner) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// Run godoc
// @Summary Trigger a reconciliation run
// @Tags Scheduler
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scheduler/run [post]
func (h *SchedulerHandler) Run(c *gin.Context) {
	report := h.scheduler.Run(c.Request.Context())
	response.JSON(c, http.StatusOK, report, nil)
}
