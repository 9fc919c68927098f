package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// SessionService 会话与智能体管理
type SessionService struct {
	repo      domainChat.AdminRepository
	histories *HistoryService
	logger    *slog.Logger
}

// NewSessionService 创建会话管理服务
func NewSessionService(repo domainChat.AdminRepository, histories *HistoryService) *SessionService {
	return &SessionService{
		repo:      repo,
		histories: histories,
		logger:    log.NewModuleLogger("chat", "session_service"),
	}
}

// CreateSession 创建活跃会话
func (s *SessionService) CreateSession(ctx context.Context, title string) (*domainChat.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainChat.NewValidationError("title cannot be empty")
	}

	session := &domainChat.Session{Title: title, Status: domainChat.SessionActive}
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session_id", session.ID, "title", title)
	return session, nil
}

// GetSession 查询会话
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domainChat.Session, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// ArchiveSession 归档会话，之后不再接收新消息
func (s *SessionService) ArchiveSession(ctx context.Context, sessionID string) error {
	return s.repo.UpdateSessionStatus(ctx, sessionID, domainChat.SessionArchived)
}

// UpdateSummary 更新会话摘要
func (s *SessionService) UpdateSummary(ctx context.Context, sessionID, summary string) (*domainChat.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.SummaryText = &summary
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update summary: %w", err)
	}
	return session, nil
}

// DeleteSession 删除会话、消息以及历史文件
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if s.histories != nil {
		if err := s.histories.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete history files: %w", err)
		}
	}
	return nil
}

// RegisterAgent 注册智能体
func (s *SessionService) RegisterAgent(ctx context.Context, name string) (*domainChat.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainChat.NewValidationError("agent name cannot be empty")
	}

	agent := &domainChat.Agent{Name: name}
	if err := s.repo.SaveAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return agent, nil
}
