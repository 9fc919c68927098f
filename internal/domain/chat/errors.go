package chat

import (
	"errors"
	"fmt"
)

// 消息与会话相关错误
var (
	// ErrValidation 输入缺失或格式错误
	ErrValidation = errors.New("validation error")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrSessionArchived 会话已归档，不再接收新消息
	ErrSessionArchived = errors.New("chat session is archived")
)

// 存储相关错误
var (
	// ErrStorage 底层存储读写失败，调用方可自行决定是否重试
	ErrStorage = errors.New("chat storage error")
)

// NewValidationError 创建带详情的校验错误，可用 errors.Is(err, ErrValidation) 判断
func NewValidationError(detail string) error {
	return fmt.Errorf("%w: %s", ErrValidation, detail)
}
