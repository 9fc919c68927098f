// Package history 定义会话历史文件的领域模型
package history

import "time"

// SimplifiedMessage 历史文件中的精简消息
type SimplifiedMessage struct {
	Sender    string `json:"sender"`    // user:{handle}、agent:{name} 或 system
	Content   string `json:"content"`   // 消息内容（可能已压缩）
	Timestamp string `json:"timestamp"` // RFC3339
}

// Metadata 历史文件元数据
type Metadata struct {
	TokenCount         uint32  `json:"token_count"`
	CompressionApplied bool    `json:"compression_applied"`
	SplitFile          *string `json:"split_file"` // 溢出文件名，没有时为 null
	// EvictedThrough 仅溢出文件使用：已归档的最新一条消息 ID
	EvictedThrough *string `json:"evicted_through,omitempty"`
}

// File 会话历史文件（主文件与溢出文件结构相同）
type File struct {
	SessionID string              `json:"session_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Messages  []SimplifiedMessage `json:"messages"`
	Metadata  Metadata            `json:"metadata"`
}

// TokenEstimator 估算精简消息列表的 token 数
type TokenEstimator interface {
	EstimateMessages(messages []SimplifiedMessage) int
}

// NewSimplifiedMessage 创建精简消息，时间统一为 UTC RFC3339
func NewSimplifiedMessage(sender, content string, at time.Time) SimplifiedMessage {
	return SimplifiedMessage{
		Sender:    sender,
		Content:   content,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

// MainFileName 主历史文件名
func MainFileName(sessionID string) string {
	return sessionID + ".json"
}

// SplitFileName 溢出文件名
func SplitFileName(sessionID string) string {
	return sessionID + "_split.json"
}
