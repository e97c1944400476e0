package handler

import (
	"net/http"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type InstanceHandler struct {
	*Handler
	instanceService service.InstanceService
}

func NewInstanceHandler(handler *Handler, instanceService service.InstanceService) *InstanceHandler {
	return &InstanceHandler{
		Handler:         handler,
		instanceService: instanceService,
	}
}

// CreateInstance godoc
// @Summary Lease a spot GPU instance, optionally with a CPU standby
// @Tags Instances
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreateInstanceRequest true "params"
// @Success 200 {object} v1.CreateInstanceResponse
// @Router /api/v1/instances [post]
func (h *InstanceHandler) CreateInstance(ctx *gin.Context) {
	req := new(v1.CreateInstanceRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.instanceService.CreateInstance(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.CreateInstance error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// GetInstance godoc
// @Summary Get instance detail
// @Tags Instances
// @Produce json
// @Security Bearer
// @Param id path string true "instance id"
// @Success 200 {object} v1.GetInstanceResponse
// @Router /api/v1/instances/{id} [get]
func (h *InstanceHandler) GetInstance(ctx *gin.Context) {
	inst, err := h.instanceService.GetInstance(ctx, ctx.Param("id"))
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.GetInstance error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, inst)
}

// ListInstances godoc
// @Summary List instances
// @Tags Instances
// @Produce json
// @Security Bearer
// @Param page query int false "page" default(1)
// @Param page_size query int false "page size" default(10)
// @Param provider query string false "provider kind"
// @Param state query string false "instance state"
// @Success 200 {object} v1.ListInstanceResponse
// @Router /api/v1/instances [get]
func (h *InstanceHandler) ListInstances(ctx *gin.Context) {
	req := new(v1.ListInstanceRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	data, err := h.instanceService.ListInstances(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.ListInstances error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// DestroyInstance godoc
// @Summary Destroy an instance and release its standby association
// @Tags Instances
// @Produce json
// @Security Bearer
// @Param id path string true "instance id"
// @Success 200 {object} v1.Response
// @Router /api/v1/instances/{id} [delete]
func (h *InstanceHandler) DestroyInstance(ctx *gin.Context) {
	if err := h.instanceService.DestroyInstance(ctx, ctx.Param("id")); err != nil {
		h.logger.WithContext(ctx).Error("instanceService.DestroyInstance error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}

// ListOffers godoc
// @Summary Search the spot marketplace for GPU offers
// @Tags Instances
// @Produce json
// @Security Bearer
// @Param gpu_type query string false "GPU model"
// @Param min_vram_gb query int false "minimum VRAM"
// @Param region query string false "region"
// @Param max_hourly query number false "maximum hourly cost"
// @Success 200 {object} v1.ListOffersResponse
// @Router /api/v1/offers [get]
func (h *InstanceHandler) ListOffers(ctx *gin.Context) {
	req := new(v1.ListOffersRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	offers, err := h.instanceService.ListOffers(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("instanceService.ListOffers error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, offers)
}
