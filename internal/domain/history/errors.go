package history

import "errors"

var (
	// ErrFilesystem 历史文件读写失败
	ErrFilesystem = errors.New("history filesystem error")
	// ErrMalformedFile 历史文件内容无法解析
	ErrMalformedFile = errors.New("malformed history file")
	// ErrInvalidSessionID 会话 ID 不能用于构造文件路径
	ErrInvalidSessionID = errors.New("invalid session id")
)
