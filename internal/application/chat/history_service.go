package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/events"
	"github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// HistoryService 会话历史文件服务
// 同一会话的所有历史文件操作串行执行，不同会话并行
type HistoryService struct {
	contexts  *ContextService
	repo      domainChat.Repository
	store     history.Store
	estimator history.TokenEstimator
	maxTokens int

	locks *sessionLocks

	cacheMu sync.RWMutex
	cache   map[string]*history.File

	unsubscribe func()
	logger      *slog.Logger
}

// NewHistoryService 创建历史服务，并订阅历史文件变更事件以失效缓存
func NewHistoryService(
	contexts *ContextService,
	repo domainChat.Repository,
	store history.Store,
	estimator history.TokenEstimator,
	cfg *config.HistoryConfig,
	bus events.EventBus,
) *HistoryService {
	maxTokens := config.DefaultHistoryMaxTokens
	if cfg != nil && cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}

	s := &HistoryService{
		contexts:  contexts,
		repo:      repo,
		store:     store,
		estimator: estimator,
		maxTokens: maxTokens,
		locks:     newSessionLocks(),
		cache:     make(map[string]*history.File),
		logger:    log.NewModuleLogger("chat", "history_service"),
	}

	if bus != nil {
		s.unsubscribe = bus.SubscribeMultiple(events.HistoryFileEventTypes, events.HandlerFunc(s.handleFileEvent))
	}
	return s
}

// Snapshot 把会话的压缩上下文写入历史文件
// token 超出上限时，把最早的消息移入溢出文件，至少保留 RecentFullMessages 条。
// 窗口之前以及被 token 上限挤出的消息都按消息 ID 归档到溢出文件，每条只归档一次。
func (s *HistoryService) Snapshot(ctx context.Context, sessionID string) (*history.File, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	older, window, err := s.contexts.BuildSnapshotContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := toSimplified(window)
	compressionApplied := false
	for _, entry := range window {
		if entry.IsCompressed() {
			compressionApplied = true
		}
	}

	keep := s.contexts.Policy().RecentFullMessages
	evictCount := 0
	for len(messages)-evictCount > keep && s.estimator.EstimateMessages(messages[evictCount:]) > s.maxTokens {
		evictCount++
	}
	messages = messages[evictCount:]
	if evictCount > 0 {
		compressionApplied = true
	}

	all := make([]domainChat.ContextEntry, 0, len(older)+len(window))
	all = append(all, older...)
	all = append(all, window...)
	retainedFrom := len(older) + evictCount

	split, err := s.store.ReadSplit(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	archiveFrom := s.archivePosition(ctx, sessionID, split, all)
	archived := 0
	if archiveFrom < retainedFrom {
		pending := all[archiveFrom:retainedFrom]
		throughID := pending[len(pending)-1].ID
		if split, err = s.store.AppendEvicted(ctx, sessionID, toSimplified(pending), throughID); err != nil {
			return nil, err
		}
		archived = len(pending)
	}

	var splitFile *string
	if split != nil {
		name := history.SplitFileName(sessionID)
		splitFile = &name
	}

	file, err := s.store.Write(ctx, sessionID, messages, compressionApplied, splitFile)
	if err != nil {
		return nil, err
	}
	s.storeCache(sessionID, file)

	log.FromContext(ctx, s.logger).Info("history snapshot written",
		"session_id", sessionID,
		"messages", len(messages),
		"evicted", evictCount,
		"archived", archived,
		"token_count", file.Metadata.TokenCount,
	)
	return cloneFile(file), nil
}

// Read 读取主历史文件，不存在时返回 nil, nil
func (s *HistoryService) Read(ctx context.Context, sessionID string) (*history.File, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if file, ok := s.loadCache(sessionID); ok {
		return cloneFile(file), nil
	}

	file, err := s.store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if file != nil {
		s.storeCache(sessionID, file)
	}
	return cloneFile(file), nil
}

// ReadSplit 读取溢出文件，不存在时返回 nil, nil
func (s *HistoryService) ReadSplit(ctx context.Context, sessionID string) (*history.File, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	return s.store.ReadSplit(ctx, sessionID)
}

// AppendSplit 追加消息到溢出文件
func (s *HistoryService) AppendSplit(ctx context.Context, sessionID string, messages []history.SimplifiedMessage) (*history.File, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	return s.store.AppendToSplit(ctx, sessionID, messages)
}

// Delete 删除会话的全部历史文件
func (s *HistoryService) Delete(ctx context.Context, sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.Invalidate(sessionID)
	return nil
}

// Invalidate 失效会话的缓存
func (s *HistoryService) Invalidate(sessionID string) {
	s.cacheMu.Lock()
	delete(s.cache, sessionID)
	s.cacheMu.Unlock()
}

// Close 取消事件订阅
func (s *HistoryService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *HistoryService) handleFileEvent(event events.Event) error {
	fileEvent, ok := event.(*events.HistoryFileEvent)
	if !ok {
		return nil
	}
	// 溢出文件不缓存
	if !fileEvent.Split {
		s.Invalidate(fileEvent.SessionID)
	}
	return nil
}

func (s *HistoryService) requireSession(ctx context.Context, sessionID string) error {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, sessionID)
	}
	return nil
}

func (s *HistoryService) loadCache(sessionID string) (*history.File, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	file, ok := s.cache[sessionID]
	return file, ok
}

func (s *HistoryService) storeCache(sessionID string, file *history.File) {
	s.cacheMu.Lock()
	s.cache[sessionID] = cloneFile(file)
	s.cacheMu.Unlock()
}

// archivePosition 返回第一条尚未归档的消息下标
// 溢出文件不存在或没有归档记录时从头归档
func (s *HistoryService) archivePosition(ctx context.Context, sessionID string, split *history.File, entries []domainChat.ContextEntry) int {
	if split == nil || split.Metadata.EvictedThrough == nil {
		return 0
	}
	through := *split.Metadata.EvictedThrough
	for idx, entry := range entries {
		if entry.ID == through {
			return idx + 1
		}
	}
	log.FromContext(ctx, s.logger).Warn("evicted message not found, archiving from start",
		"session_id", sessionID,
		"evicted_through", through,
	)
	return 0
}

func toSimplified(entries []domainChat.ContextEntry) []history.SimplifiedMessage {
	messages := make([]history.SimplifiedMessage, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, history.NewSimplifiedMessage(entry.Sender.HistoryLabel(), entry.Content, entry.CreatedAt))
	}
	return messages
}

func cloneFile(file *history.File) *history.File {
	if file == nil {
		return nil
	}
	clone := *file
	clone.Messages = make([]history.SimplifiedMessage, len(file.Messages))
	copy(clone.Messages, file.Messages)
	if file.Metadata.SplitFile != nil {
		name := *file.Metadata.SplitFile
		clone.Metadata.SplitFile = &name
	}
	if file.Metadata.EvictedThrough != nil {
		id := *file.Metadata.EvictedThrough
		clone.Metadata.EvictedThrough = &id
	}
	return &clone
}
