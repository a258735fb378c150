package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shopify_order_sync/internal/config"
	"shopify_order_sync/internal/controller"
	"shopify_order_sync/internal/middleware"
	"shopify_order_sync/internal/model"
	"shopify_order_sync/internal/repository"
	"shopify_order_sync/internal/router"
	"shopify_order_sync/internal/service"
	"shopify_order_sync/internal/task"
	"shopify_order_sync/pkg/database"
	"shopify_order_sync/pkg/logger"
	"shopify_order_sync/pkg/net"
	"shopify_order_sync/pkg/shopify"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("加载配置失败", zap.Error(err))
	}

	// 2. 初始化日志
	log := logger.NewForEnv(cfg.App.Env, cfg.Log.Level)
	if cfg.Log.Format != "" {
		log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	defer func() { _ = log.Sync() }()
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. 初始化数据库
	db, err := initDatabase(cfg, log)
	if err != nil {
		log.Fatal("数据库初始化失败", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	// 4. 初始化依赖
	deps := initDependencies(cfg, db, log)

	// 5. 启动定时任务
	if err := initTasks(cfg, deps, log); err != nil {
		log.Fatal("定时任务启动失败", zap.Error(err))
	}

	// 6. 初始化路由
	opts := router.Options{
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		SyncCooldown: cfg.Sync.Cooldown,
		SyncLimiter:  deps.SyncLimiter,
		Logger:       log,
	}
	r := router.New(opts)
	router.InitRoutes(r, opts, deps.OrderCtl)

	// 7. 启动服务
	startServer(cfg, r, deps, log)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	Shopify     *shopify.Client
	OrderSvc    *service.OrderService
	OrderCtl    *controller.OrderController
	SyncLimiter *middleware.SyncRateLimiter
	Tasks       *task.TaskManager
}

// ==================== 初始化函数 ====================

// initDatabase 建库、连接并建表
func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	opts := database.InitOptions{
		DSN:    cfg.Database.DSN(),
		DBName: cfg.Database.DBName,
		Pool: database.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
		Models: model.AllModels(),
	}
	if cfg.Database.CreateIfMissing {
		opts.AdminDSN = cfg.Database.AdminDSN()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return database.Initialize(ctx, opts, logger.NewGormLogger(log.Named("gorm"), cfg.Database.LogSQL), log.Named("database"))
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, log *zap.Logger) *Dependencies {
	// -------- Repo 层 --------
	orderRepo := repository.NewOrderRepository(db)

	// -------- Shopify 客户端 --------
	client := shopify.NewClient(shopify.Config{
		APIVersion: cfg.Shopify.APIVersion,
		Scheme:     cfg.Shopify.Scheme,
		HTTP: net.ClientOptions{
			Timeout:   cfg.Shopify.Timeout,
			UserAgent: cfg.Shopify.UserAgent,
			Proxy:     cfg.Shopify.Proxy,
			Debug:     cfg.Shopify.Debug,
		},
		Guard: net.GuardConfig{
			RatePerSecond:   cfg.Shopify.RatePerSecond,
			Burst:           cfg.Shopify.Burst,
			BreakerFailures: cfg.Shopify.BreakerFailures,
			BreakerTimeout:  cfg.Shopify.BreakerTimeout,
		},
	})

	// -------- 业务服务 --------
	orderSvc := service.NewOrderService(orderRepo, client, service.OrderServiceConfig{
		DefaultMode:     service.SyncMode(cfg.Sync.Mode),
		MaxOrders:       cfg.Sync.MaxOrders,
		RecentDays:      cfg.Sync.RecentDays,
		JoinConcurrency: cfg.Sync.JoinConcurrency,
	}, log)

	return &Dependencies{
		DB:          db,
		OrderRepo:   orderRepo,
		Shopify:     client,
		OrderSvc:    orderSvc,
		OrderCtl:    controller.NewOrderController(orderSvc, log),
		SyncLimiter: middleware.NewSyncRateLimiter(),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(cfg *config.Config, deps *Dependencies, log *zap.Logger) error {
	shops := make([]shopify.Credential, 0, len(cfg.Task.Shops))
	for _, s := range cfg.Task.Shops {
		shops = append(shops, shopify.Credential{Shop: s.Domain, AccessToken: s.AccessToken})
	}

	deps.Tasks = task.NewTaskManager(&task.TaskManagerDeps{
		OrderSyncer: deps.OrderSvc,
		SyncLimiter: deps.SyncLimiter,
		Shops:       shops,
	}, task.TaskManagerConfig{
		OrderEnabled: cfg.Task.Enabled,
		Order: task.OrderTaskConfig{
			Cron:       cfg.Task.Cron,
			Cooldown:   cfg.Sync.Cooldown,
			RunOnStart: true,
		},
	}, log)
	return deps.Tasks.Start()
}

// ==================== 服务启动 ====================

// startServer 启动服务并等待退出信号
func startServer(cfg *config.Config, r *gin.Engine, deps *Dependencies, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Info("服务启动", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	if deps.Tasks != nil {
		deps.Tasks.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务强制关闭", zap.Error(err))
		return
	}

	log.Info("服务已退出")
}
