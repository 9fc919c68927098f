package wire

import (
	"errors"
	"log/slog"
	"net/http"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	"github.com/chatgroup/backend/internal/domain/events"
	applog "github.com/chatgroup/backend/internal/infrastructure/log"
	"github.com/chatgroup/backend/internal/infrastructure/watcher"
	"github.com/chatgroup/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	histories  *appChat.HistoryService
	logger     *slog.Logger

	// 历史目录监听
	eventBus    events.EventBus
	fileWatcher *watcher.FileWatcher
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	histories *appChat.HistoryService,
	eventBus events.EventBus,
	fileWatcher *watcher.FileWatcher,
) *App {
	return &App{
		HTTPServer:  httpServer,
		MCPServer:   mcpServer,
		histories:   histories,
		logger:      applog.NewModuleLogger("app", "main"),
		eventBus:    eventBus,
		fileWatcher: fileWatcher,
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting chatgroup backend application")

	// 监听失败只影响缓存失效，不阻止启动
	if a.fileWatcher != nil {
		if err := a.fileWatcher.Start(); err != nil {
			a.logger.Error("Failed to start file watcher",
				"error", err,
			)
		} else {
			a.logger.Info("File watcher started successfully")
		}
	}

	go func() {
		if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	// MCP 通过 HTTP 的 /mcp/sse 提供服务
	if err := a.MCPServer.Start(); err != nil {
		return err
	}

	a.logger.Info("chatgroup backend application started successfully")
	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping chatgroup backend application")

	if a.fileWatcher != nil {
		a.fileWatcher.Stop()
		a.logger.Info("File watcher stopped")
	}

	if a.histories != nil {
		a.histories.Close()
	}

	if a.eventBus != nil {
		a.eventBus.Close()
		a.logger.Info("Event bus closed")
	}

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}
	if err := a.MCPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop MCP server",
			"error", err,
		)
		return err
	}

	a.logger.Info("chatgroup backend application stopped successfully")
	return nil
}
