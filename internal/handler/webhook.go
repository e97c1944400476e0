package handler

import (
	"errors"
	"net/http"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler receives pushed interruption notices from providers. These
// arrive on provider schedules (often a 30 second warning before preemption),
// so the handler acknowledges fast and lets the orchestrator work async.
type WebhookHandler struct {
	*Handler
	manager *orchestrator.Manager
}

func NewWebhookHandler(handler *Handler, manager *orchestrator.Manager) *WebhookHandler {
	return &WebhookHandler{
		Handler: handler,
		manager: manager,
	}
}

// InterruptionNotice godoc
// @Summary Provider interruption webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body v1.InterruptionNoticeRequest true "params"
// @Success 200 {object} v1.InterruptionNoticeResponse
// @Router /api/v1/webhooks/interruptions [post]
func (h *WebhookHandler) InterruptionNotice(ctx *gin.Context) {
	req := new(v1.InterruptionNoticeRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	eventID, err := h.manager.HandleInterruption(ctx, req.InstanceID, req.Reason)
	if err != nil {
		// a duplicate notice for an in-flight failover is acknowledged, the
		// provider must not keep retrying it
		if errors.Is(err, orchestrator.ErrFailoverInProgress) {
			v1.HandleSuccess(ctx, &v1.InterruptionNoticeResponseData{})
			return
		}
		h.logger.WithContext(ctx).Error("manager.HandleInterruption error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, &v1.InterruptionNoticeResponseData{EventID: eventID})
}
