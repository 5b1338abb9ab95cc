package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/lifecycle"
	"go.uber.org/zap"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
)

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	// Finalizers 在所有后台服务退出后按顺序执行，用于关闭连接
	Finalizers []func()
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, finalizers ...func()) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		Finalizers:      finalizers,
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 阻塞直到接收到停机信号
	sig := <-sigChan
	logger.Info("收到关闭信号，开始优雅停机...", zap.String("signal", sig.String()))
	c.Shutdown(server)
}

// Shutdown 关闭HTTP服务器，然后分两个阶段停止后台服务
func (c *Coordinator) Shutdown(server *http.Server) {
	if server != nil {
		// 关闭HTTP服务器，允许正在进行的请求完成
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP服务器关闭错误", zap.Error(err))
		} else {
			logger.Info("HTTP服务器已关闭。")
		}
	}

	// --- 阶段一: 优雅停机 ---
	logger.Info("第一阶段停机：等待后台任务完成", zap.Duration("timeout", gracefulTimeout))
	c.GracefulManager.Shutdown()

	remaining := c.GracefulManager.WaitWithTimeout(gracefulTimeout)
	if len(remaining) == 0 {
		logger.Info("所有服务已在第一阶段优雅关闭。")
	} else {
		// --- 阶段二: 强制停机 ---
		logger.Warn("第一阶段超时，发送第二停机信号", zap.Strings("remaining", remaining))
		c.ForcefulManager.Shutdown()
		if left := c.ForcefulManager.WaitWithTimeout(forcefulTimeout); len(left) > 0 {
			logger.Error("强制停机后仍有服务未退出", zap.Strings("services", left))
		}
	}

	// --- 最终步骤 ---
	for _, f := range c.Finalizers {
		f()
	}
	logger.Info("优雅停机完成。")
}
