package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shopify_order_sync/internal/api/dto"
)

// Health 健康检查
// GET /health
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
	})
}
