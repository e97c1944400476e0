package router

import (
	"github.com/gin-gonic/gin"
)

// Provider webhooks authenticate with a shared secret in the payload URL,
// not a user token, so this group skips StrictAuth.
func InitWebhookRouter(
	deps RouterDeps,
	r *gin.RouterGroup,
) {
	webhookRouter := r.Group("/webhooks")
	{
		webhookRouter.POST("/interruptions", deps.WebhookHandler.InterruptionNotice)
	}
}
