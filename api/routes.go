package api

import (
	"github.com/SlpAus/sparkle-wheel-backend/internal/admin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/health"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/metrics"
	"github.com/SlpAus/sparkle-wheel-backend/internal/spin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
)

// Deps 是注册路由所需的全部处理器
type Deps struct {
	Wheels *wheel.Service
	Auth   *admin.Authenticator
	Health *health.Checker
	Wheel  *wheel.Handler
	Leads  *lead.Handler
	Spins  *spin.Handler
	Events *event.Handler
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/healthz", d.Health.Handler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	requireAdmin := admin.Middleware(d.Auth)
	// 大屏与管理端使用任意状态的轮盘，报名只接受启用的轮盘
	anyWheel := wheel.RequireWheel(d.Wheels, false)
	activeWheel := wheel.RequireWheel(d.Wheels, true)

	api := router.Group("/api")
	{
		api.GET("/wheels/lookup", d.Wheel.Lookup)
		api.POST("/submit", activeWheel, d.Leads.Submit)
		api.GET("/export", requireAdmin, anyWheel, d.Leads.Export)

		// 大屏使用的公开接口
		wheelRoutes := api.Group("/wheel", anyWheel)
		{
			wheelRoutes.GET("/eligible", d.Spins.Eligible)
			wheelRoutes.GET("/winners", d.Spins.Winners)
			wheelRoutes.GET("/events", d.Events.Stream)
		}

		spinRoutes := api.Group("/spin")
		{
			spinRoutes.GET("/lock", anyWheel, d.Spins.Lock)
			spinRoutes.GET("/animation", anyWheel, d.Spins.Animation)
			spinRoutes.POST("/create", requireAdmin, anyWheel, d.Spins.Create)
			spinRoutes.POST("/finalize", requireAdmin, anyWheel, d.Spins.Finalize)
			spinRoutes.POST("/cancel", requireAdmin, anyWheel, d.Spins.Cancel)
		}

		adminRoutes := api.Group("/admin", requireAdmin)
		{
			adminRoutes.GET("/me", admin.Me)
			adminRoutes.GET("/wheels", d.Wheel.List)
			adminRoutes.POST("/wheels", d.Wheel.Create)
			adminRoutes.PATCH("/wheels/:id", d.Wheel.Update)
			adminRoutes.GET("/entries", anyWheel, d.Leads.Entries)
		}
	}
}
