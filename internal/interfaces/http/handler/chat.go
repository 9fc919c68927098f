package handler

import (
	"encoding/json"
	"net/http"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// 上下文模式
const (
	ContextModeFull      = "full"
	ContextModeCompacted = "compacted"
)

// ChatHandler 群聊消息与上下文处理器
type ChatHandler struct {
	messages *appChat.MessageService
	contexts *appChat.ContextService
}

// NewChatHandler 创建群聊处理器
func NewChatHandler(messages *appChat.MessageService, contexts *appChat.ContextService) *ChatHandler {
	return &ChatHandler{messages: messages, contexts: contexts}
}

// CreateMessageRequest 创建消息请求
type CreateMessageRequest struct {
	MessageID  string          `json:"message_id"` // 可选，缺省时生成 UUID
	SenderType string          `json:"sender_type" binding:"required"`
	SenderID   *string         `json:"sender_id"`
	Content    string          `json:"content"`
	Meta       json.RawMessage `json:"meta" swaggertype:"object"`
}

// CreateMessage 发送消息
// @Summary 发送群聊消息
// @Tags 群聊
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param body body CreateMessageRequest true "消息内容"
// @Success 201 {object} response.Response{data=MessageDTO}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/messages [post]
func (h *ChatHandler) CreateMessage(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeInvalidParam, "参数错误", err.Error())
		return
	}

	input := appChat.CreateMessageInput{
		SessionID:  c.Param("session_id"),
		SenderType: domainChat.SenderType(req.SenderType),
		SenderID:   req.SenderID,
		Content:    req.Content,
		Meta:       optionalJSON(req.Meta),
	}

	var (
		msg *domainChat.Message
		err error
	)
	if req.MessageID != "" {
		msg, err = h.messages.CreateMessageWithID(c.Request.Context(), input, req.MessageID)
	} else {
		msg, err = h.messages.CreateMessage(c.Request.Context(), input)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Created(c, toMessageDTO(msg))
}

// GetContext 获取智能体上下文
// @Summary 获取会话上下文
// @Description mode=compacted（默认）只保留最近的窗口并压缩较早的消息；mode=full 返回全部消息
// @Tags 群聊
// @Produce json
// @Param session_id path string true "会话ID"
// @Param mode query string false "full 或 compacted"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/context [get]
func (h *ChatHandler) GetContext(c *gin.Context) {
	sessionID := c.Param("session_id")
	mode := c.DefaultQuery("mode", ContextModeCompacted)

	var (
		entries []domainChat.ContextEntry
		err     error
	)
	switch mode {
	case ContextModeFull:
		entries, err = h.contexts.BuildFullContext(c.Request.Context(), sessionID)
	case ContextModeCompacted:
		entries, err = h.contexts.BuildCompactedContext(c.Request.Context(), sessionID)
	default:
		response.Error(c, http.StatusBadRequest, response.CodeInvalidParam, "mode 只能为 full 或 compacted")
		return
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, entries)
}
