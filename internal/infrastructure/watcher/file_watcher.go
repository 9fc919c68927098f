package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chatgroup/backend/internal/domain/events"
	infraHistory "github.com/chatgroup/backend/internal/infrastructure/history"
	"github.com/chatgroup/backend/internal/infrastructure/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay 默认防抖延迟
const DefaultDebounceDelay = 200 * time.Millisecond

// WatchConfig FileWatcher 配置
type WatchConfig struct {
	// HistoryDir 历史文件目录
	HistoryDir string
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// FileWatcher 历史目录监听器，将文件变更转为 HistoryFileEvent 发布
type FileWatcher struct {
	config   WatchConfig
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// 控制
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFileWatcher 创建文件监听器
func NewFileWatcher(config WatchConfig, eventBus events.EventBus) (*FileWatcher, error) {
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		config:         config,
		eventBus:       eventBus,
		watcher:        watcher,
		logger:         log.NewModuleLogger("watcher", "file_watcher"),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动文件监听，目录不存在时自动创建
func (fw *FileWatcher) Start() error {
	fw.logger.Info("Starting file watcher", "history_dir", fw.config.HistoryDir)

	if err := os.MkdirAll(fw.config.HistoryDir, 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := fw.watcher.Add(fw.config.HistoryDir); err != nil {
		return fmt.Errorf("watch history dir: %w", err)
	}

	fw.wg.Add(1)
	go fw.watchLoop()

	return nil
}

// Stop 停止文件监听
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		fw.logger.Info("Stopping file watcher")

		close(fw.stopCh)
		fw.watcher.Close()
		fw.wg.Wait()

		fw.debounceMu.Lock()
		for path, timer := range fw.debounceTimers {
			timer.Stop()
			delete(fw.debounceTimers, path)
		}
		fw.debounceMu.Unlock()

		fw.logger.Info("File watcher stopped")
	})
}

// watchLoop 事件监听循环
func (fw *FileWatcher) watchLoop() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 过滤非历史文件后进入防抖
func (fw *FileWatcher) handleFsEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !fw.isHistoryFile(event.Name) {
		return
	}

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	select {
	case <-fw.stopCh:
		return
	default:
	}

	if timer, exists := fw.debounceTimers[event.Name]; exists {
		timer.Stop()
	}

	path := event.Name
	fw.debounceTimers[path] = time.AfterFunc(fw.config.DebounceDelay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.emitHistoryFileEvent(path, event.Op)
	})
}

// isHistoryFile 判断是否为历史目录下的会话文件
func (fw *FileWatcher) isHistoryFile(path string) bool {
	if infraHistory.IsTempFile(path) {
		return false
	}
	if filepath.Clean(filepath.Dir(path)) != filepath.Clean(fw.config.HistoryDir) {
		return false
	}
	_, _, ok := infraHistory.SessionIDFromPath(path)
	return ok
}

// emitHistoryFileEvent 按文件当前状态发布事件
func (fw *FileWatcher) emitHistoryFileEvent(path string, op fsnotify.Op) {
	sessionID, split, ok := infraHistory.SessionIDFromPath(path)
	if !ok {
		return
	}

	eventType := events.HistoryFileModified
	if _, err := os.Stat(path); os.IsNotExist(err) {
		eventType = events.HistoryFileDeleted
	} else if op.Has(fsnotify.Create) {
		eventType = events.HistoryFileCreated
	}

	fw.logger.Debug("History file changed",
		"type", eventType,
		"session_id", sessionID,
		"split", split,
	)

	fw.eventBus.Publish(&events.HistoryFileEvent{
		EventType: eventType,
		SessionID: sessionID,
		Split:     split,
		FilePath:  path,
		EventTime: time.Now(),
	})
}
