package chat

import "context"

// Repository 群聊关系存储的窄接口
// 上下文构建与消息创建只依赖这些操作，每个操作自身是原子的
type Repository interface {
	// FindMessagesBySession 按创建时间升序返回会话内全部消息
	FindMessagesBySession(ctx context.Context, sessionID string) ([]*Message, error)

	// FindAllAgents 返回智能体目录
	FindAllAgents(ctx context.Context) ([]*Agent, error)

	// FindAgentByID 根据 ID 查找智能体，不存在时返回 nil, nil
	FindAgentByID(ctx context.Context, id string) (*Agent, error)

	// FindSessionByID 根据 ID 查找会话，不存在时返回 nil, nil
	FindSessionByID(ctx context.Context, id string) (*Session, error)

	// TouchSession 刷新会话的最后活跃时间
	TouchSession(ctx context.Context, id string) error

	// CreateMessage 使用显式 ID 插入消息并返回持久化后的记录
	CreateMessage(ctx context.Context, draft *MessageDraft, id string) (*Message, error)
}

// AdminRepository 会话与智能体的管理操作
type AdminRepository interface {
	Repository

	// SaveSession 保存会话（插入或更新），ID 为空时生成
	SaveSession(ctx context.Context, session *Session) error

	// UpdateSessionStatus 更新会话状态
	UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error

	// SaveAgent 保存智能体（插入或更新），ID 为空时生成
	SaveAgent(ctx context.Context, agent *Agent) error

	// DeleteSession 删除会话及其消息
	DeleteSession(ctx context.Context, id string) error
}
