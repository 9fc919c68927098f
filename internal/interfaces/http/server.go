package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/chatgroup/backend/docs" // Swagger docs
	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/chatgroup/backend/internal/infrastructure/log"
	"github.com/chatgroup/backend/internal/interfaces/http/handler"
	"github.com/chatgroup/backend/internal/interfaces/http/middleware"
	"github.com/chatgroup/backend/internal/interfaces/mcp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	cfg *config.ServerConfig,
	chatHandler *handler.ChatHandler,
	historyHandler *handler.HistoryHandler,
	sessionHandler *handler.SessionHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	if !log.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, chatHandler, historyHandler, sessionHandler)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": log.DefaultServiceName})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	httpPort := config.DefaultHTTPPort
	if cfg != nil && cfg.HTTPPort != "" {
		httpPort = cfg.HTTPPort
	}

	return &HTTPServer{
		router:   router,
		httpPort: httpPort,
		logger:   log.NewModuleLogger("http", "server"),
	}
}

// registerRoutes 注册 /api/v1 路由
func registerRoutes(
	router *gin.Engine,
	chatHandler *handler.ChatHandler,
	historyHandler *handler.HistoryHandler,
	sessionHandler *handler.SessionHandler,
) {
	api := router.Group("/api/v1")
	api.Use(middleware.RequestID(), middleware.EnsureUTF8Body())

	chat := api.Group("/chat")
	{
		chat.POST("/agents", sessionHandler.RegisterAgent)

		chat.POST("/sessions", sessionHandler.CreateSession)
		chat.GET("/sessions/:session_id", sessionHandler.GetSession)
		chat.DELETE("/sessions/:session_id", sessionHandler.DeleteSession)
		chat.POST("/sessions/:session_id/archive", sessionHandler.ArchiveSession)
		chat.PUT("/sessions/:session_id/summary", sessionHandler.UpdateSummary)

		chat.POST("/sessions/:session_id/messages", chatHandler.CreateMessage)
		chat.GET("/sessions/:session_id/context", chatHandler.GetContext)

		chat.POST("/sessions/:session_id/history/snapshot", historyHandler.Snapshot)
		chat.GET("/sessions/:session_id/history", historyHandler.Read)
		chat.DELETE("/sessions/:session_id/history", historyHandler.Delete)
		chat.POST("/sessions/:session_id/export", historyHandler.Export)
	}
}

// Handler 返回路由，便于测试
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              s.httpPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
