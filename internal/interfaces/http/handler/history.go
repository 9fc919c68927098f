package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	"github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/chatgroup/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// HistoryHandler 会话历史文件处理器
type HistoryHandler struct {
	histories *appChat.HistoryService
	exports   *appChat.ExportService
	exportDir string
}

// NewHistoryHandler 创建历史文件处理器
func NewHistoryHandler(histories *appChat.HistoryService, exports *appChat.ExportService) *HistoryHandler {
	return &HistoryHandler{
		histories: histories,
		exports:   exports,
		exportDir: filepath.Join(config.GetDataDir(), "exports"),
	}
}

// ExportRequest 导出请求
type ExportRequest struct {
	Dir string `json:"dir"` // 可选，缺省为 {dataDir}/exports/{session_id}
}

// Snapshot 写入历史快照
// @Summary 生成会话历史快照
// @Tags 历史
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/history/snapshot [post]
func (h *HistoryHandler) Snapshot(c *gin.Context) {
	file, err := h.histories.Snapshot(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, file)
}

// Read 读取历史文件
// @Summary 读取会话历史文件
// @Tags 历史
// @Produce json
// @Param session_id path string true "会话ID"
// @Param split query bool false "读取溢出文件"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/history [get]
func (h *HistoryHandler) Read(c *gin.Context) {
	sessionID := c.Param("session_id")

	var (
		file *history.File
		err  error
	)
	if c.Query("split") == "true" {
		file, err = h.histories.ReadSplit(c.Request.Context(), sessionID)
	} else {
		file, err = h.histories.Read(c.Request.Context(), sessionID)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	if file == nil {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "历史文件不存在")
		return
	}

	response.Success(c, file)
}

// Delete 删除历史文件
// @Summary 删除会话历史文件
// @Tags 历史
// @Produce json
// @Param session_id path string true "会话ID"
// @Success 200 {object} response.Response
// @Router /chat/sessions/{session_id}/history [delete]
func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.histories.Delete(c.Request.Context(), c.Param("session_id")); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// Export 导出会话归档
// @Summary 导出会话归档（JSONL + 摘要）
// @Tags 历史
// @Accept json
// @Produce json
// @Param session_id path string true "会话ID"
// @Param body body ExportRequest false "导出目录"
// @Success 200 {object} response.Response{data=ExportDTO}
// @Failure 404 {object} response.ErrorResponse
// @Router /chat/sessions/{session_id}/export [post]
func (h *HistoryHandler) Export(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req ExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ErrorWithDetail(c, http.StatusBadRequest, response.CodeInvalidParam, "参数错误", err.Error())
			return
		}
	}

	dir := strings.TrimSpace(req.Dir)
	if dir == "" {
		// 会话存在性由导出服务校验，ID 不会逃逸出导出目录
		dir = filepath.Join(h.exportDir, sessionID)
	}

	out, err := h.exports.ExportSessionArchive(c.Request.Context(), sessionID, dir)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, ExportDTO{Dir: out})
}
