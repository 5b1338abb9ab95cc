package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/api"
	"github.com/SlpAus/sparkle-wheel-backend/internal/admin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/database"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/health"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/metrics"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/middleware"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/shutdown"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/startup"
	"github.com/SlpAus/sparkle-wheel-backend/internal/spin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/lifecycle"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("加载配置失败: " + err.Error())
	}
	logger.InitLogger(cfg.Log)
	defer logger.Sync()

	database.InitDB(cfg.Database)
	database.InitRedis(cfg.Database.Redis)

	// 1. 迁移表结构并授予初始管理员
	if err := startup.InitializeApplication(context.Background(), database.DB, cfg.Auth); err != nil {
		logger.Error("应用初始化失败，无法启动", zap.Error(err))
		panic(err)
	}

	// 2. 组装业务模块
	bus := event.NewBus(database.RDB, database.IsRedisHealthy)
	leadRepo, err := lead.NewRepository(database.DB)
	if err != nil {
		logger.Error("初始化线索仓库失败", zap.Error(err))
		panic(err)
	}
	leadSvc, err := lead.NewService(leadRepo, lead.Options{
		Cities:  lead.NewZipCityLookup(cfg.Submit.ZipLookupURL, cfg.Submit.ZipLookupWait),
		Limiter: lead.NewSubmitLimiter(database.RDB, cfg.Submit.RateLimit, cfg.Submit.RateWindow, database.IsRedisHealthy),
		Events:  bus,
	})
	if err != nil {
		logger.Error("初始化报名服务失败", zap.Error(err))
		panic(err)
	}
	wheelSvc := wheel.NewService(database.DB)
	spinSvc := spin.NewService(database.DB, leadRepo, spin.Options{
		LockTTL: cfg.Spin.LockTTL,
		Events:  bus,
	})
	checker := health.NewChecker(database.DB, database.RDB)

	// 3. 执行一次启动后健康检查
	logger.Info("正在执行启动后健康检查...")
	checker.PerformCheck(context.Background())

	// 4. 启动后台服务
	gracefulMgr := lifecycle.NewManager("graceful", logger.L())
	forcefulMgr := lifecycle.NewManager("forceful", logger.L())
	if err := gracefulMgr.Go("spin-sweeper", func(h *lifecycle.Handle) {
		spin.StartSweeper(h, spinSvc, cfg.Spin.SweepInterval)
	}); err != nil {
		panic(err)
	}
	if err := gracefulMgr.Go("health-checker", checker.Start); err != nil {
		panic(err)
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	// 只有配置的反向代理可以通过 X-Forwarded-For 指定客户端IP
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Error("可信代理配置无效", zap.Error(err))
		panic(err)
	}
	r.Use(middleware.RequestID(), middleware.Recovery(), metrics.GinMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	events := event.NewHandler(bus, 0)
	api.SetupRoutes(r, api.Deps{
		Wheels: wheelSvc,
		Auth:   admin.NewAuthenticator(database.DB, cfg.Auth),
		Health: checker,
		Wheel:  wheel.NewHandler(wheelSvc),
		Leads:  lead.NewHandler(leadSvc),
		Spins:  spin.NewHandler(spinSvc),
		Events: events,
	})

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// 停机时先结束大屏的事件长连接，否则 Shutdown 会一直等到超时
	server.RegisterOnShutdown(events.Close)

	go func() {
		logger.Info("服务器已准备就绪，开始监听", zap.String("addr", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP服务器异常退出", zap.Error(err))
			panic(err)
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, database.CloseRedis, database.Close)
	coordinator.ListenForSignalsAndShutdown(server)
}
