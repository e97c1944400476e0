package handler

import (
	"net/http"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FailoverHandler struct {
	*Handler
	failoverService service.FailoverService
}

func NewFailoverHandler(handler *Handler, failoverService service.FailoverService) *FailoverHandler {
	return &FailoverHandler{
		Handler:         handler,
		failoverService: failoverService,
	}
}

// TriggerFailover godoc
// @Summary Manually trigger a failover for a primary instance
// @Tags Failovers
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.TriggerFailoverRequest true "params"
// @Success 200 {object} v1.TriggerFailoverResponse
// @Router /api/v1/failovers [post]
func (h *FailoverHandler) TriggerFailover(ctx *gin.Context) {
	req := new(v1.TriggerFailoverRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.failoverService.Trigger(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("failoverService.Trigger error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// CancelFailover godoc
// @Summary Cancel an in-flight failover
// @Tags Failovers
// @Produce json
// @Security Bearer
// @Param id path string true "primary instance id"
// @Success 200 {object} v1.Response
// @Router /api/v1/failovers/{id}/cancel [post]
func (h *FailoverHandler) CancelFailover(ctx *gin.Context) {
	if err := h.failoverService.Cancel(ctx, ctx.Param("id")); err != nil {
		h.logger.WithContext(ctx).Error("failoverService.Cancel error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}

// GetFailoverEvent godoc
// @Summary Get a single failover event
// @Tags Failovers
// @Produce json
// @Security Bearer
// @Param id path string true "event id"
// @Success 200 {object} v1.GetFailoverEventResponse
// @Router /api/v1/failovers/{id} [get]
func (h *FailoverHandler) GetFailoverEvent(ctx *gin.Context) {
	data, err := h.failoverService.GetEvent(ctx, ctx.Param("id"))
	if err != nil {
		h.logger.WithContext(ctx).Error("failoverService.GetEvent error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// ListFailovers godoc
// @Summary Query failover history
// @Tags Failovers
// @Produce json
// @Security Bearer
// @Param primary_instance_id query string false "primary instance id"
// @Param status query string false "IN_PROGRESS / SUCCESS / FAILED"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param page query int false "page" default(1)
// @Param page_size query int false "page size" default(50)
// @Success 200 {object} v1.ListFailoverResponse
// @Router /api/v1/failovers [get]
func (h *FailoverHandler) ListFailovers(ctx *gin.Context) {
	req := new(v1.ListFailoverRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.failoverService.History(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("failoverService.History error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// FailoverStats godoc
// @Summary Aggregate failover outcomes
// @Tags Failovers
// @Produce json
// @Security Bearer
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} v1.FailoverStatsResponse
// @Router /api/v1/failovers/stats [get]
func (h *FailoverHandler) FailoverStats(ctx *gin.Context) {
	req := new(v1.FailoverStatsRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.failoverService.Stats(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("failoverService.Stats error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}
