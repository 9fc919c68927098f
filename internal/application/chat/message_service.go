package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// CreateMessageInput 创建消息的输入
type CreateMessageInput struct {
	SessionID  string
	SenderType domainChat.SenderType
	SenderID   *string
	Content    string
	Meta       json.RawMessage // 任意 JSON，非对象会被包装为 raw_meta
}

// MessageService 消息创建流水线
type MessageService struct {
	repo   domainChat.Repository
	now    func() time.Time
	logger *slog.Logger
}

// NewMessageService 创建消息服务
func NewMessageService(repo domainChat.Repository) *MessageService {
	return &MessageService{
		repo:   repo,
		now:    time.Now,
		logger: log.NewModuleLogger("chat", "message_service"),
	}
}

// CreateMessage 生成新 ID 并创建消息
func (s *MessageService) CreateMessage(ctx context.Context, input CreateMessageInput) (*domainChat.Message, error) {
	return s.CreateMessageWithID(ctx, input, uuid.New().String())
}

// CreateMessageWithID 使用指定 ID 创建消息
// 校验全部通过后才写入存储，任何一步失败都不会修改存储
func (s *MessageService) CreateMessageWithID(ctx context.Context, input CreateMessageInput, messageID string) (*domainChat.Message, error) {
	if !input.SenderType.Valid() {
		return nil, domainChat.NewValidationError(fmt.Sprintf("unknown sender_type %q", input.SenderType))
	}
	if input.SenderType == domainChat.SenderAgent && input.SenderID == nil {
		return nil, domainChat.NewValidationError("sender_id is required for agent messages")
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, domainChat.NewValidationError(fmt.Sprintf("invalid message id %q", messageID))
	}

	session, err := s.repo.FindSessionByID(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, input.SessionID)
	}
	if session.Status != domainChat.SessionActive {
		return nil, fmt.Errorf("%w: %s", domainChat.ErrSessionArchived, input.SessionID)
	}

	mentions := domainChat.ParseMentions(input.Content)
	meta, err := domainChat.NormalizeMetadata(input.Meta)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Content) == "" && !meta.HasAttachments() {
		return nil, domainChat.NewValidationError("content cannot be empty")
	}

	var agentName *string
	if input.SenderType == domainChat.SenderAgent {
		agent, err := s.repo.FindAgentByID(ctx, *input.SenderID)
		if err != nil {
			return nil, fmt.Errorf("failed to find agent: %w", err)
		}
		if agent != nil {
			agentName = &agent.Name
		}
	}

	sender := domainChat.ResolveSender(input.SenderType, input.SenderID, meta.SenderHandle, agentName)
	// 调用方提供的 sender 块不覆盖
	if !meta.HasSender() {
		meta.SetSender(sender)
	}
	meta.SetStructured(domainChat.StructuredSnapshot{
		SenderType:   sender.Type,
		SenderID:     sender.ID,
		SenderHandle: sender.Handle,
		SenderLabel:  sender.Label,
		Content:      input.Content,
		Mentions:     mentions,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	})

	msg, err := s.repo.CreateMessage(ctx, &domainChat.MessageDraft{
		SessionID:  input.SessionID,
		SenderType: input.SenderType,
		SenderID:   input.SenderID,
		Content:    input.Content,
		Mentions:   mentions,
		Meta:       meta,
	}, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	if err := s.repo.TouchSession(ctx, input.SessionID); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	log.FromContext(log.WithMessageID(ctx, msg.ID), s.logger).Info("message created",
		"session_id", msg.SessionID,
		"sender_type", msg.SenderType,
		"mentions", len(mentions),
	)
	return msg, nil
}
