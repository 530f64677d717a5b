package router

import (
	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/handler"
	"roadcall.app/dispatch/internal/http/handler/webhook"
	"roadcall.app/dispatch/internal/service"
)

type RouterConfig struct {
	WebhookToken string
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	smsHandler := webhook.NewSMSWebhookHandler(services.Webhooks(), cfg.WebhookToken)
	router.POST("/webhooks/sms", smsHandler.HandleEvent)

	v1 := router.Group("/api/v1")
	{
		messageHandler := handler.NewMessageHandler(services.Sender(), services.Conversations())
		MessageRouter(v1.Group("/messages"), messageHandler)

		quarantineHandler := handler.NewQuarantineHandler(services.UnassignedMessages())
		QuarantineRouter(v1.Group("/quarantine"), quarantineHandler)
	}
}
