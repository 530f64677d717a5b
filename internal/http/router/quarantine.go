package router

import (
	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/handler"
)

func QuarantineRouter(rg *gin.RouterGroup, h *handler.QuarantineHandler) {
	rg.GET("", h.List)
}
