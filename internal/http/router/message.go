package router

import (
	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/handler"
)

func MessageRouter(rg *gin.RouterGroup, h *handler.MessageHandler) {
	rg.POST("/send", h.Send)
	rg.POST("/send/mechanic", h.SendMechanic)
	rg.POST("/send/driver", h.SendDriver)
	rg.GET("/ticket/:ticket_id", h.GetByTicket)
	rg.POST("/read", h.MarkRead)
}
