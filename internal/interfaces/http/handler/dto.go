package handler

import (
	"bytes"
	"encoding/json"
	"time"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
)

// MessageDTO 消息 DTO
type MessageDTO struct {
	ID         string              `json:"id"`
	SessionID  string              `json:"session_id"`
	SenderType string              `json:"sender_type"`
	SenderID   *string             `json:"sender_id"`
	Content    string              `json:"content"`
	Mentions   []string            `json:"mentions"`
	Meta       domainChat.Metadata `json:"meta" swaggertype:"object"`
	CreatedAt  string              `json:"created_at"` // RFC3339
}

// SessionDTO 会话 DTO
type SessionDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	SummaryText *string `json:"summary_text"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// AgentDTO 智能体 DTO
type AgentDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ExportDTO 导出结果
type ExportDTO struct {
	Dir string `json:"dir"`
}

func toMessageDTO(msg *domainChat.Message) *MessageDTO {
	mentions := msg.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	return &MessageDTO{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		SenderType: string(msg.SenderType),
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		Mentions:   mentions,
		Meta:       msg.Meta,
		CreatedAt:  formatTime(msg.CreatedAt),
	}
}

func toSessionDTO(session *domainChat.Session) *SessionDTO {
	return &SessionDTO{
		ID:          session.ID,
		Title:       session.Title,
		Status:      string(session.Status),
		SummaryText: session.SummaryText,
		CreatedAt:   formatTime(session.CreatedAt),
		UpdatedAt:   formatTime(session.UpdatedAt),
	}
}

func toAgentDTO(agent *domainChat.Agent) *AgentDTO {
	return &AgentDTO{
		ID:        agent.ID,
		Name:      agent.Name,
		CreatedAt: formatTime(agent.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// optionalJSON JSON null 与缺省等价
func optionalJSON(raw json.RawMessage) json.RawMessage {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
