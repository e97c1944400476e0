package router

import (
	"gpustandby/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitFailoverRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/failovers").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.GET("", deps.FailoverHandler.ListFailovers)
		// stats and stream must register before /:id to avoid route conflicts
		strictAuthRouter.GET("/stats", deps.FailoverHandler.FailoverStats)
		strictAuthRouter.GET("/stream", deps.StreamHandler.StreamFailovers)
		strictAuthRouter.GET("/:id", deps.FailoverHandler.GetFailoverEvent)
		strictAuthRouter.POST("", deps.FailoverHandler.TriggerFailover)
		strictAuthRouter.POST("/:id/cancel", deps.FailoverHandler.CancelFailover)
	}
}
