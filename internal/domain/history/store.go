package history

import "context"

// Store 历史文件存储
// 同一会话的并发调用需要由调用方串行化
type Store interface {
	// Write 写入主文件，覆盖已有内容
	Write(ctx context.Context, sessionID string, messages []SimplifiedMessage, compressionApplied bool, splitFile *string) (*File, error)

	// Read 读取主文件，不存在时返回 nil, nil
	Read(ctx context.Context, sessionID string) (*File, error)

	// ReadSplit 读取溢出文件，不存在时返回 nil, nil
	ReadSplit(ctx context.Context, sessionID string) (*File, error)

	// CreateSplit 写入全新的溢出文件
	CreateSplit(ctx context.Context, sessionID string, messages []SimplifiedMessage) (*File, error)

	// AppendToSplit 把消息追加到溢出文件（读取-修改-写入）
	AppendToSplit(ctx context.Context, sessionID string, messages []SimplifiedMessage) (*File, error)

	// AppendEvicted 追加从主文件移出的消息，并把归档位置推进到 throughID
	AppendEvicted(ctx context.Context, sessionID string, messages []SimplifiedMessage, throughID string) (*File, error)

	// Delete 删除主文件和溢出文件
	Delete(ctx context.Context, sessionID string) error
}
