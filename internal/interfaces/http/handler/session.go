package handler

import (
	"net/http"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	"github.com/chatgroup/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// SessionHandler 会话与智能体管理处理器
type SessionHandler struct {
	sessions *appChat.SessionService
}

// NewSessionHandler 创建会话管理处理器
func NewSessionHandler(sessions *appChat.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateSummaryRequest 更新摘要请求
type UpdateSummaryRequest struct {
	Summary string `json:"summary"`
}

// RegisterAgentRequest 注册智能体请求
type RegisterAgentRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateSession 创建会话
// @Summary 创建群聊会话
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body CreateSessionRequest true "会话标题"
// @Success 201 {object} response.Response{data=SessionDTO}
// @Failure 400 {object} response.ErrorResponse
// @Router /chat/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeInvalidParam, "参数错误", err.Error())
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toSessionDTO(session))
}

// GetSession 查询会话
// @Summary 查询群聊会话
// @Tags 会话
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.Response{data=SessionDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toSessionDTO(session))
}

// ArchiveSession 归档会话
// @Summary 归档群聊会话
// @Tags 会话
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/archive [post]
func (h *SessionHandler) ArchiveSession(c *gin.Context) {
	if err := h.sessions.ArchiveSession(c.Request.Context(), c.Param("session_id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// UpdateSummary 更新会话摘要
// @Summary 更新会话摘要
// @Tags 会话
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param body body UpdateSummaryRequest true "摘要"
// @Success 200 {object} response.Response{data=SessionDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/summary [put]
func (h *SessionHandler) UpdateSummary(c *gin.Context) {
	var req UpdateSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeInvalidParam, "参数错误", err.Error())
		return
	}

	session, err := h.sessions.UpdateSummary(c.Request.Context(), c.Param("session_id"), req.Summary)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toSessionDTO(session))
}

// DeleteSession 删除会话
// @Summary 删除会话、消息与历史文件
// @Tags 会话
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("session_id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// RegisterAgent 注册智能体
// @Summary 注册智能体
// @Tags 会话
// @Accept json
// @Produce json
// @Param body body RegisterAgentRequest true "智能体名称"
// @Success 201 {object} response.Response{data=AgentDTO}
// @Failure 400 {object} response.ErrorResponse
// @Router /chat/agents [post]
func (h *SessionHandler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeInvalidParam, "参数错误", err.Error())
		return
	}

	agent, err := h.sessions.RegisterAgent(c.Request.Context(), req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toAgentDTO(agent))
}
