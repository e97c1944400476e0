package handler

import (
	"net/http"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SnapshotHandler struct {
	*Handler
	snapshotService service.SnapshotService
}

func NewSnapshotHandler(handler *Handler, snapshotService service.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{
		Handler:         handler,
		snapshotService: snapshotService,
	}
}

// CreateSnapshot godoc
// @Summary Snapshot an instance's workspace
// @Tags Snapshots
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.CreateSnapshotRequest true "params"
// @Success 200 {object} v1.CreateSnapshotResponse
// @Router /api/v1/snapshots [post]
func (h *SnapshotHandler) CreateSnapshot(ctx *gin.Context) {
	req := new(v1.CreateSnapshotRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.snapshotService.CreateSnapshot(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).Error("snapshotService.CreateSnapshot error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// ListSnapshots godoc
// @Summary List snapshots of an instance
// @Tags Snapshots
// @Produce json
// @Security Bearer
// @Param instance_id query string true "source instance id"
// @Success 200 {object} v1.ListSnapshotResponse
// @Router /api/v1/snapshots [get]
func (h *SnapshotHandler) ListSnapshots(ctx *gin.Context) {
	req := new(v1.ListSnapshotRequest)
	if err := ctx.ShouldBindQuery(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.snapshotService.ListSnapshots(ctx, req.InstanceID)
	if err != nil {
		h.logger.WithContext(ctx).Error("snapshotService.ListSnapshots error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// RestoreSnapshot godoc
// @Summary Restore a snapshot onto a target instance
// @Tags Snapshots
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "snapshot id"
// @Param request body v1.RestoreSnapshotRequest true "params"
// @Success 200 {object} v1.RestoreSnapshotResponse
// @Router /api/v1/snapshots/{id}/restore [post]
func (h *SnapshotHandler) RestoreSnapshot(ctx *gin.Context) {
	req := new(v1.RestoreSnapshotRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		v1.HandleError(ctx, http.StatusBadRequest, v1.ErrBadRequest, nil)
		return
	}

	data, err := h.snapshotService.RestoreSnapshot(ctx, ctx.Param("id"), req.TargetInstanceID)
	if err != nil {
		h.logger.WithContext(ctx).Error("snapshotService.RestoreSnapshot error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, data)
}

// DeleteSnapshot godoc
// @Summary Delete a snapshot and its stored archive
// @Tags Snapshots
// @Produce json
// @Security Bearer
// @Param id path string true "snapshot id"
// @Success 200 {object} v1.Response
// @Router /api/v1/snapshots/{id} [delete]
func (h *SnapshotHandler) DeleteSnapshot(ctx *gin.Context) {
	if err := h.snapshotService.DeleteSnapshot(ctx, ctx.Param("id")); err != nil {
		h.logger.WithContext(ctx).Error("snapshotService.DeleteSnapshot error", zap.Error(err))
		v1.HandleError(ctx, http.StatusInternalServerError, err, nil)
		return
	}

	v1.HandleSuccess(ctx, nil)
}
