package mcp

import (
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// ServerName MCP 服务器名称
const ServerName = "chatgroup-daemon"

// ServerVersion MCP 服务器版本
const ServerVersion = "0.1.0"

// MCPServer MCP 服务器，只暴露只读的上下文与历史工具
type MCPServer struct {
	server    *mcp.Server
	handler   http.Handler
	contexts  *appChat.ContextService
	histories *appChat.HistoryService
	logger    *slog.Logger
}

// NewServer 创建 MCP 服务器
func NewServer(contexts *appChat.ContextService, histories *appChat.HistoryService) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil, // 使用默认能力
	)

	mcpServer := &MCPServer{
		server:    server,
		contexts:  contexts,
		histories: histories,
		logger:    log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_chat_context",
		Description: `Get the structured context of a group chat session for an agent.
Parameters:
- session_id (string, required): Chat session ID (UUID)
- mode (string, optional): "compacted" (default) keeps the most recent window and compresses older messages; "full" returns every message verbatim

Returns: ordered context entries with sender, content, mentions, metadata and a compressed flag (compacted mode only).`,
	}, mcpServer.getChatContextTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_chat_history",
		Description: `Read the persisted history file of a group chat session.
Parameters:
- session_id (string, required): Chat session ID (UUID)
- split (bool, optional): Read the overflow file holding messages evicted from the main file

Returns: found flag, simplified messages (sender, content, timestamp) and file metadata (token count, compression flag, split file name).`,
	}, mcpServer.getChatHistoryTool)

	mcpServer.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil, // SSEOptions，使用默认值
	)
	return mcpServer
}

// GetHandler 返回 SSE 处理器，由 HTTP 服务器挂载
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}

// Start HTTP/SSE 模式下由 HTTP 服务器统一管理，无需单独启动
func (s *MCPServer) Start() error {
	s.logger.Info("MCP server ready", "transport", "sse")
	return nil
}

// Stop 停止服务器
func (s *MCPServer) Stop() error {
	return nil
}
