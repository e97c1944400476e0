package router

import (
	"gpustandby/internal/middleware"

	"github.com/gin-gonic/gin"
)

func InitInstanceRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	strictAuthRouter := r.Group("/instances").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		strictAuthRouter.GET("", deps.InstanceHandler.ListInstances)
		strictAuthRouter.GET("/:id", deps.InstanceHandler.GetInstance)
		strictAuthRouter.POST("", deps.InstanceHandler.CreateInstance)
		strictAuthRouter.DELETE("/:id", deps.InstanceHandler.DestroyInstance)
	}

	offerRouter := r.Group("/offers").Use(middleware.StrictAuth(deps.JWT, deps.Logger))
	{
		offerRouter.GET("", deps.InstanceHandler.ListOffers)
	}
}
