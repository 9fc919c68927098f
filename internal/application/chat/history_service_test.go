package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/events"
	"github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	infraHistory "github.com/chatgroup/backend/internal/infrastructure/history"
	"github.com/chatgroup/backend/internal/infrastructure/watcher"
)

type historyFixture struct {
	repo    *fakeRepo
	store   *infraHistory.FileStore
	bus     events.EventBus
	service *HistoryService
}

// newHistoryFixture 每条消息 10 token，maxTokens 控制主文件容量
func newHistoryFixture(t *testing.T, maxTokens int) *historyFixture {
	t.Helper()

	repo := newFakeRepo()
	store := infraHistory.NewFileStore(t.TempDir(), countingEstimator{})
	bus := watcher.NewEventBus()
	t.Cleanup(bus.Close)

	contexts := NewContextService(repo, nil)
	svc := NewHistoryService(contexts, repo, store, countingEstimator{}, &config.HistoryConfig{MaxTokens: maxTokens}, bus)
	t.Cleanup(svc.Close)

	return &historyFixture{repo: repo, store: store, bus: bus, service: svc}
}

func numbered(i int) string { return fmt.Sprintf("message %d", i) }

func TestHistoryService_Snapshot(t *testing.T) {
	f := newHistoryFixture(t, 8000)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 3, numbered)

	file, err := f.service.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)

	require.Len(t, file.Messages, 3)
	assert.Equal(t, "user:alice", file.Messages[0].Sender)
	assert.Equal(t, "message 0", file.Messages[0].Content)
	assert.Equal(t, uint32(30), file.Metadata.TokenCount)
	assert.False(t, file.Metadata.CompressionApplied)
	assert.Nil(t, file.Metadata.SplitFile)

	onDisk, err := f.store.Read(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, file.Messages, onDisk.Messages)

	split, err := f.service.ReadSplit(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, split)
}

func TestHistoryService_SnapshotCompressionFlag(t *testing.T) {
	f := newHistoryFixture(t, 8000)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 6, numbered)

	file, err := f.service.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Len(t, file.Messages, 6)
	assert.True(t, file.Metadata.CompressionApplied, "超过 RecentFullMessages 的消息进入压缩层")
	assert.Nil(t, file.Metadata.SplitFile)
}

func TestHistoryService_SnapshotOverflowToSplit(t *testing.T) {
	f := newHistoryFixture(t, 100)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 40, numbered)

	file, err := f.service.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)

	// 窗口 30 条，主文件容纳 10 条
	require.Len(t, file.Messages, 10)
	assert.Equal(t, "message 30", file.Messages[0].Content)
	assert.Equal(t, "message 39", file.Messages[9].Content)
	assert.True(t, file.Metadata.CompressionApplied)
	require.NotNil(t, file.Metadata.SplitFile)
	assert.Equal(t, history.SplitFileName(sessionID), *file.Metadata.SplitFile)
	assert.LessOrEqual(t, int(file.Metadata.TokenCount), 100)

	// 窗口之前的 10 条和被挤出的 20 条都归档
	split, err := f.service.ReadSplit(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, split)
	require.Len(t, split.Messages, 30)
	assert.Equal(t, "message 0", split.Messages[0].Content)
	assert.Equal(t, "message 10", split.Messages[10].Content)
	assert.Equal(t, "message 29", split.Messages[29].Content)
}

func TestHistoryService_SnapshotKeepsRecentMessages(t *testing.T) {
	// 上限低于 RecentFullMessages 条消息的 token 数时仍保留最近 5 条
	f := newHistoryFixture(t, 10)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 12, numbered)

	file, err := f.service.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)

	require.Len(t, file.Messages, 5)
	assert.Equal(t, "message 7", file.Messages[0].Content)

	split, err := f.service.ReadSplit(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, split.Messages, 7)
}

func TestHistoryService_RepeatedSnapshotNoDuplicates(t *testing.T) {
	f := newHistoryFixture(t, 100)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 40, numbered)
	ctx := context.Background()

	_, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	_, err = f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)

	split, err := f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, split.Messages, 30, "重复快照不应重复写入溢出文件")

	// 新消息使窗口滑动一条
	_, err = NewMessageService(f.repo).CreateMessage(ctx, CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderSystem,
		Content:    "message 40",
	})
	require.NoError(t, err)

	file, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "message 31", file.Messages[0].Content)
	assert.Equal(t, "system", file.Messages[9].Sender)

	split, err = f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, split.Messages, 31)
	assert.Equal(t, "message 30", split.Messages[30].Content)
}

func TestHistoryService_WindowedOutMessagesArchived(t *testing.T) {
	f := newHistoryFixture(t, 8000)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 30, numbered)
	ctx := context.Background()

	file, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, file.Messages, 30)
	assert.Equal(t, "message 0", file.Messages[0].Content)
	assert.Nil(t, file.Metadata.SplitFile)

	msgs := NewMessageService(f.repo)
	for i := 30; i < 35; i++ {
		_, err := msgs.CreateMessage(ctx, CreateMessageInput{
			SessionID:  sessionID,
			SenderType: domainChat.SenderUser,
			Content:    numbered(i),
			Meta:       json.RawMessage(`{"sender_handle":"alice"}`),
		})
		require.NoError(t, err)
	}

	file, err = f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, file.Messages, 30)
	assert.Equal(t, "message 5", file.Messages[0].Content)
	require.NotNil(t, file.Metadata.SplitFile)

	split, err := f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, split)
	require.Len(t, split.Messages, 5)
	for i, msg := range split.Messages {
		assert.Equal(t, numbered(i), msg.Content)
	}

	_, err = f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	split, err = f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, split.Messages, 5)
}

func TestHistoryService_IdenticalMessagesBothArchived(t *testing.T) {
	f := newHistoryFixture(t, 60)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	ctx := context.Background()

	seedMessages(t, f.repo, sessionID, 2, func(int) string { return "ok" })
	seedMessages(t, f.repo, sessionID, 5, numbered)

	// 两条 "ok" 同一秒发出，精简后完全相同
	f.repo.mu.Lock()
	stored := f.repo.messages[sessionID]
	stored[1].CreatedAt = stored[0].CreatedAt
	f.repo.mu.Unlock()

	file, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, file.Messages, 6)

	split, err := f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, split.Messages, 1)

	seedMessages(t, f.repo, sessionID, 1, func(int) string { return "later" })

	file, err = f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, file.Messages, 6)

	split, err = f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, split.Messages, 2)
	assert.Equal(t, split.Messages[0], split.Messages[1])
	assert.Equal(t, "ok", split.Messages[1].Content)
	assert.Equal(t, 8, len(file.Messages)+len(split.Messages))
}

func TestHistoryService_SnapshotMissingSession(t *testing.T) {
	f := newHistoryFixture(t, 100)

	_, err := f.service.Snapshot(context.Background(), "550e8400-e29b-41d4-a716-446655440000")
	assert.ErrorIs(t, err, domainChat.ErrSessionNotFound)
}

func TestHistoryService_ReadUsesCache(t *testing.T) {
	f := newHistoryFixture(t, 8000)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 2, numbered)
	ctx := context.Background()

	missing, err := f.service.Read(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)

	// 绕过服务直接改写文件，缓存仍返回旧内容
	replaced := []history.SimplifiedMessage{history.NewSimplifiedMessage("system", "external", time.Now())}
	_, err = f.store.Write(ctx, sessionID, replaced, false, nil)
	require.NoError(t, err)

	cached, err := f.service.Read(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, cached.Messages, 2)

	// 修改返回值不影响缓存
	cached.Messages[0].Content = "mutated"
	again, err := f.service.Read(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "message 0", again.Messages[0].Content)

	f.bus.Publish(&events.HistoryFileEvent{
		EventType: events.HistoryFileModified,
		SessionID: sessionID,
		FilePath:  filepath.Join(f.store.Dir(), history.MainFileName(sessionID)),
		EventTime: time.Now(),
	})

	assert.Eventually(t, func() bool {
		file, err := f.service.Read(ctx, sessionID)
		return err == nil && len(file.Messages) == 1 && file.Messages[0].Content == "external"
	}, time.Second, 10*time.Millisecond)
}

func TestHistoryService_SplitEventKeepsCache(t *testing.T) {
	f := newHistoryFixture(t, 8000)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 1, numbered)
	ctx := context.Background()

	_, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)

	require.NoError(t, f.service.handleFileEvent(&events.HistoryFileEvent{
		EventType: events.HistoryFileModified,
		SessionID: sessionID,
		Split:     true,
	}))
	_, ok := f.service.loadCache(sessionID)
	assert.True(t, ok)

	require.NoError(t, f.service.handleFileEvent(&events.HistoryFileEvent{
		EventType: events.HistoryFileDeleted,
		SessionID: sessionID,
	}))
	_, ok = f.service.loadCache(sessionID)
	assert.False(t, ok)
}

func TestHistoryService_Delete(t *testing.T) {
	f := newHistoryFixture(t, 100)
	sessionID := f.repo.addSession(t, domainChat.SessionActive)
	seedMessages(t, f.repo, sessionID, 40, numbered)
	ctx := context.Background()

	_, err := f.service.Snapshot(ctx, sessionID)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, sessionID))

	file, err := f.service.Read(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, file)

	split, err := f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, split)

	_, err = os.Stat(filepath.Join(f.store.Dir(), history.MainFileName(sessionID)))
	assert.True(t, os.IsNotExist(err))

	// 删除不存在的文件不报错
	assert.NoError(t, f.service.Delete(ctx, sessionID))
}

func TestHistoryService_ConcurrentAppendSplit(t *testing.T) {
	f := newHistoryFixture(t, 100)
	sessionID := "550e8400-e29b-41d4-a716-446655440000"
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := history.NewSimplifiedMessage("user:alice", fmt.Sprintf("append %d", i), time.Now())
			if _, err := f.service.AppendSplit(ctx, sessionID, []history.SimplifiedMessage{msg}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	split, err := f.service.ReadSplit(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, split.Messages, writers)

	seen := make(map[string]bool, writers)
	for _, msg := range split.Messages {
		seen[msg.Content] = true
	}
	assert.Len(t, seen, writers, "并发追加不应丢失消息")
	assert.Equal(t, 0, f.service.locks.size(), "操作完成后应回收会话锁")
}

func TestHistoryService_InvalidSessionID(t *testing.T) {
	f := newHistoryFixture(t, 100)

	_, err := f.service.AppendSplit(context.Background(), "../escape", nil)
	assert.ErrorIs(t, err, history.ErrInvalidSessionID)
	assert.ErrorIs(t, err, domainChat.ErrValidation)
}

func TestHistoryService_DefaultMaxTokens(t *testing.T) {
	svc := NewHistoryService(NewContextService(newFakeRepo(), nil), newFakeRepo(), nil, countingEstimator{}, nil, nil)
	defer svc.Close()

	assert.Equal(t, config.DefaultHistoryMaxTokens, svc.maxTokens)
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	assert.Equal(t, 2, locks.size())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("同一会话的锁应互斥")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()

	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 10*time.Millisecond)
}
