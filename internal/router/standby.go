package router

import (
	"gpustandby/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitStandbyRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/standbys").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.POST("", deps.StandbyHandler.AssociateStandby)
		strictAuthRouter.GET("/:primary_id", deps.StandbyHandler.GetStandby)
		strictAuthRouter.DELETE("/:primary_id", deps.StandbyHandler.DissociateStandby)
		strictAuthRouter.POST("/:primary_id/sync", deps.StandbyHandler.SyncNow)
	}
}
