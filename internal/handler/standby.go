package handler

import (
	"net/http"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StandbyHandler struct {
	*Handler
	standbyService service.StandbyService
}

func NewStandbyHandler(handler *Handler, standbyService service.StandbyService) *StandbyHandler {
	return &StandbyHandler{
		Handler:        handler,
		standbyService: standbyService,
	}
}

// AssociateStandby godoc
// @Summary Associate a CPU standby with a primary GPU instance
// @Tags Standbys
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.AssociateStandbyRequest true "params"
// @Success 200 {object} v1.AssociateStandbyResponse
// @Router /api/v1/standbys [post]
func (h *StandbyHandler) AssociateStandby(ctx *gin.Context) {
	req := new(v1.AssociateStandbyRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.standbyService.Associate(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("standbyService.Associate error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// GetStandby godoc
// @Summary Get a primary's standby association and sync status
// @Tags Standbys
// @Produce json
// @Security Bearer
// @Param primary_id path string true "primary instance id"
// @Success 200 {object} v1.GetStandbyResponse
// @Router /api/v1/standbys/{primary_id} [get]
func (h *StandbyHandler) GetStandby(ctx *gin.Context) {
	data, err := h.standbyService.GetStandby(ctx, ctx.Param("primary_id"))
	if err != nil {
		h.logger.WithContext(ctx).Error("standbyService.GetStandby error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// DissociateStandby godoc
// @Summary Tear down a standby association
// @Tags Standbys
// @Produce json
// @Security Bearer
// @Param primary_id path string true "primary instance id"
// @Param destroy_standby query bool false "also destroy the standby instance"
// @Success 200 {object} v1.Response
// @Router /api/v1/standbys/{primary_id} [delete]
func (h *StandbyHandler) DissociateStandby(ctx *gin.Context) {
	req := new(v1.DissociateStandbyRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if err := h.standbyService.Dissociate(ctx, ctx.Param("primary_id"), req.DestroyStandby); err != nil {
		h.logger.WithContext(ctx).Error("standbyService.Dissociate error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}

// SyncNow godoc
// @Summary Run one sync cycle immediately
// @Tags Standbys
// @Produce json
// @Security Bearer
// @Param primary_id path string true "primary instance id"
// @Success 200 {object} v1.SyncNowResponse
// @Router /api/v1/standbys/{primary_id}/sync [post]
func (h *StandbyHandler) SyncNow(ctx *gin.Context) {
	data, err := h.standbyService.SyncNow(ctx, ctx.Param("primary_id"))
	if err != nil {
		h.logger.WithContext(ctx).Error("standbyService.SyncNow error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}
