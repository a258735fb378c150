package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shopify_order_sync/internal/controller"
	"shopify_order_sync/internal/middleware"
)

// Options 路由依赖
type Options struct {
	CORSOrigins  []string
	SyncCooldown time.Duration
	SyncLimiter  *middleware.SyncRateLimiter
	Logger       *zap.Logger
}

// New 创建引擎并注册全局中间件
func New(opts Options) *gin.Engine {
	corsCfg := cors.Config{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			middleware.HeaderShopDomain, middleware.HeaderAccessToken, middleware.HeaderRequestID,
		},
		ExposeHeaders: []string{middleware.HeaderRequestID, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	// 未配置来源时放开全部
	if len(opts.CORSOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(opts.Logger),
		gin.Recovery(),
		cors.New(corsCfg),
	)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, opts Options, orderCtl *controller.OrderController) {
	if opts.SyncLimiter == nil {
		opts.SyncLimiter = middleware.NewSyncRateLimiter()
	}

	// 健康检查不需要店铺凭证
	r.GET("/health", controller.Health)

	api := r.Group("/api")
	{
		api.GET("/health", controller.Health)

		// 以下路由都要求店铺凭证头
		shop := api.Group("", middleware.ShopHeaders())
		{
			// GET /api/orders
			shop.GET("/orders", orderCtl.List)
			// GET /api/orders/last-60-days
			shop.GET("/orders/last-60-days", orderCtl.Recent)
			// GET /api/orders/:id
			shop.GET("/orders/:id", orderCtl.GetByID)

			// POST /api/sync/orders
			shop.POST("/sync/orders",
				middleware.SyncRateLimit(opts.SyncLimiter, middleware.SyncTypeOrder, opts.SyncCooldown),
				orderCtl.Sync,
			)
		}
	}
}
