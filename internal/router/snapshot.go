package router

import (
	"gpustandby/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitSnapshotRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/snapshots").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.GET("", deps.SnapshotHandler.ListSnapshots)
		strictAuthRouter.POST("", deps.SnapshotHandler.CreateSnapshot)
		strictAuthRouter.POST("/:id/restore", deps.SnapshotHandler.RestoreSnapshot)
		strictAuthRouter.DELETE("/:id", deps.SnapshotHandler.DeleteSnapshot)
	}
}
