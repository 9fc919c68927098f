// Package chat 群聊上下文构建、消息创建与历史快照服务
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// ContextService 为智能体构建结构化上下文
type ContextService struct {
	repo   domainChat.Repository
	policy config.ContextConfig
	logger *slog.Logger
}

// NewContextService 创建上下文服务，非法策略回退到默认值
func NewContextService(repo domainChat.Repository, cfg *config.ContextConfig) *ContextService {
	policy := config.DefaultContextConfig()
	if cfg != nil {
		policy = cfg.OrDefault()
	}
	return &ContextService{
		repo:   repo,
		policy: policy,
		logger: log.NewModuleLogger("chat", "context_service"),
	}
}

// Policy 返回生效的压缩策略
func (s *ContextService) Policy() config.ContextConfig {
	return s.policy
}

// BuildFullContext 构建完整上下文：全部消息、完整内容与元数据，不做窗口和压缩
func (s *ContextService) BuildFullContext(ctx context.Context, sessionID string) ([]domainChat.ContextEntry, error) {
	messages, agentNames, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries := make([]domainChat.ContextEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, newContextEntry(msg, agentNames, msg.Content, msg.Meta.Clone(), nil))
	}
	return entries, nil
}

// BuildCompactedContext 构建压缩上下文
// 只保留最近 MaxContextMessages 条；最近 RecentFullMessages 条保持完整，其余压缩内容并只保留 sender 元数据
func (s *ContextService) BuildCompactedContext(ctx context.Context, sessionID string) ([]domainChat.ContextEntry, error) {
	messages, agentNames, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	_, window := s.splitWindow(messages)
	entries, compressedCount := s.compact(window, agentNames)

	log.FromContext(ctx, s.logger).Debug("compacted context built",
		"session_id", sessionID,
		"entries", len(entries),
		"compressed", compressedCount,
	)
	return entries, nil
}

// BuildSnapshotContext 构建历史快照用的上下文
// window 与 BuildCompactedContext 一致；older 是窗口之前的消息，全部压缩
func (s *ContextService) BuildSnapshotContext(ctx context.Context, sessionID string) (older, window []domainChat.ContextEntry, err error) {
	messages, agentNames, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	before, inWindow := s.splitWindow(messages)
	older = make([]domainChat.ContextEntry, 0, len(before))
	for _, msg := range before {
		older = append(older, s.compressedEntry(msg, agentNames))
	}
	window, _ = s.compact(inWindow, agentNames)
	return older, window, nil
}

func (s *ContextService) splitWindow(messages []*domainChat.Message) (before, window []*domainChat.Message) {
	if len(messages) > s.policy.MaxContextMessages {
		cut := len(messages) - s.policy.MaxContextMessages
		return messages[:cut], messages[cut:]
	}
	return nil, messages
}

func (s *ContextService) compact(messages []*domainChat.Message, agentNames map[string]string) ([]domainChat.ContextEntry, int) {
	firstRecent := len(messages) - s.policy.RecentFullMessages
	compressedCount := 0

	entries := make([]domainChat.ContextEntry, 0, len(messages))
	for idx, msg := range messages {
		if idx >= firstRecent {
			full := false
			entries = append(entries, newContextEntry(msg, agentNames, msg.Content, msg.Meta.Clone(), &full))
			continue
		}
		entries = append(entries, s.compressedEntry(msg, agentNames))
		compressedCount++
	}
	return entries, compressedCount
}

func (s *ContextService) compressedEntry(msg *domainChat.Message, agentNames map[string]string) domainChat.ContextEntry {
	compressed := true
	budget := domainChat.CompressionBudget(msg.Content, s.policy.CompressionRatio, s.policy.MinCompressedChars, s.policy.MaxCompressedChars)
	content := domainChat.CompressContent(msg.Content, budget)
	return newContextEntry(msg, agentNames, content, msg.Meta.SenderOnly(), &compressed)
}

// load 并发读取会话消息和智能体目录
func (s *ContextService) load(ctx context.Context, sessionID string) ([]*domainChat.Message, map[string]string, error) {
	var messages []*domainChat.Message
	var agents []*domainChat.Agent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		messages, err = s.repo.FindMessagesBySession(gctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		agents, err = s.repo.FindAllAgents(gctx)
		if err != nil {
			return fmt.Errorf("failed to load agents: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	agentNames := make(map[string]string, len(agents))
	for _, agent := range agents {
		agentNames[agent.ID] = agent.Name
	}
	return messages, agentNames, nil
}

func newContextEntry(msg *domainChat.Message, agentNames map[string]string, content string, meta domainChat.Metadata, compressed *bool) domainChat.ContextEntry {
	var agentName *string
	if msg.SenderID != nil {
		if name, ok := agentNames[*msg.SenderID]; ok {
			agentName = &name
		}
	}

	mentions := msg.Mentions
	if mentions == nil {
		mentions = []string{}
	}

	return domainChat.ContextEntry{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		CreatedAt:  msg.CreatedAt,
		Sender:     domainChat.ResolveSender(msg.SenderType, msg.SenderID, msg.Meta.SenderHandle, agentName),
		Content:    content,
		Mentions:   mentions,
		Meta:       meta,
		Compressed: compressed,
	}
}
