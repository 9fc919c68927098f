// Package chat 定义多智能体群聊的领域模型与纯业务规则
package chat

import (
	"encoding/json"
	"time"
)

// SenderType 消息发送方类型
type SenderType string

const (
	// SenderUser 用户
	SenderUser SenderType = "user"
	// SenderAgent 智能体
	SenderAgent SenderType = "agent"
	// SenderSystem 系统
	SenderSystem SenderType = "system"
)

// Valid 检查发送方类型是否合法
func (t SenderType) Valid() bool {
	switch t {
	case SenderUser, SenderAgent, SenderSystem:
		return true
	default:
		return false
	}
}

// SessionStatus 会话状态
type SessionStatus string

const (
	// SessionActive 活跃，可接收新消息
	SessionActive SessionStatus = "active"
	// SessionArchived 已归档
	SessionArchived SessionStatus = "archived"
)

// Session 群聊会话实体
type Session struct {
	ID          string
	Title       string
	Status      SessionStatus
	SummaryText *string   // 会话摘要（可选）
	CreatedAt   time.Time // 创建时间
	UpdatedAt   time.Time // 最后活跃时间
}

// Agent 智能体成员
type Agent struct {
	ID        string
	Name      string // 显示名称，同时作为 @ 提及的 handle
	CreatedAt time.Time
}

// Message 群聊消息实体
type Message struct {
	ID         string
	SessionID  string
	SenderType SenderType
	SenderID   *string // agent 消息必填
	Content    string
	Mentions   []string
	Meta       Metadata
	CreatedAt  time.Time
}

// MessageDraft 待插入的消息
type MessageDraft struct {
	SessionID  string
	SenderType SenderType
	SenderID   *string
	Content    string
	Mentions   []string
	Meta       Metadata
}

// SenderDescriptor 解析后的发送方描述
type SenderDescriptor struct {
	Type   SenderType `json:"type"`
	ID     *string    `json:"id"`
	Handle *string    `json:"handle"`
	Name   *string    `json:"name"`
	Label  string     `json:"label"`
}

// ContextEntry 发送给智能体的结构化上下文条目
// 仅在一次构建调用内存在，不写回关系存储
type ContextEntry struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	CreatedAt  time.Time        `json:"created_at"`
	Sender     SenderDescriptor `json:"sender"`
	Content    string           `json:"content"`
	Mentions   []string         `json:"mentions"`
	Meta       Metadata         `json:"meta"`
	Compressed *bool            `json:"compressed,omitempty"` // 完整上下文不携带该字段
}

// IsCompressed 条目内容是否经过压缩
func (e *ContextEntry) IsCompressed() bool {
	return e.Compressed != nil && *e.Compressed
}

// AttachmentMeta 附件元数据
type AttachmentMeta struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	MimeType     *string `json:"mime_type"`
	SizeBytes    int64   `json:"size_bytes"`
	Kind         string  `json:"kind"`
	RelativePath string  `json:"relative_path"`
}

// StructuredSnapshot 消息创建时刻的结构化快照，每次创建都会覆盖
type StructuredSnapshot struct {
	SenderType   SenderType `json:"sender_type"`
	SenderID     *string    `json:"sender_id"`
	SenderHandle *string    `json:"sender_handle"`
	SenderLabel  string     `json:"sender_label"`
	Content      string     `json:"content"`
	Mentions     []string   `json:"mentions"`
	CreatedAt    string     `json:"created_at"`
}

// rawOf 把任意值编码为 RawMessage，编码失败返回 null
func rawOf(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
