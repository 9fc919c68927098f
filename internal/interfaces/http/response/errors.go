package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/history"
)

// 业务错误码
const (
	CodeInvalidParam    = 100001
	CodeSessionNotFound = 200001
	CodeNotFound        = 200002
	CodeSessionArchived = 300001
	CodeStorage         = 500001
	CodeFilesystem      = 500002
	CodeInternal        = 500099
)

// FromError 按领域错误映射 HTTP 状态码：校验 400，不存在 404，已归档 409，其余 500
func FromError(c *gin.Context, err error) {
	httpCode, errCode, message := classify(err)
	ErrorWithDetail(c, httpCode, errCode, message, err.Error())
}

func classify(err error) (int, int, string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, CodeInvalidParam, "参数错误"
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionNotFound, "会话不存在"
	case errors.Is(err, chat.ErrSessionArchived):
		return http.StatusConflict, CodeSessionArchived, "会话已归档"
	case errors.Is(err, chat.ErrStorage):
		return http.StatusInternalServerError, CodeStorage, "存储错误"
	case errors.Is(err, history.ErrFilesystem), errors.Is(err, history.ErrMalformedFile):
		return http.StatusInternalServerError, CodeFilesystem, "历史文件错误"
	default:
		return http.StatusInternalServerError, CodeInternal, "内部错误"
	}
}
