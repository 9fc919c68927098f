package watcher

import (
	"github.com/chatgroup/backend/internal/domain/events"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/google/wire"
)

// ProvideEventBus 提供事件总线实例
func ProvideEventBus() events.EventBus {
	return NewEventBus()
}

// ProvideFileWatcher 提供历史目录监听器实例
func ProvideFileWatcher(cfg *config.HistoryConfig, eventBus events.EventBus) (*FileWatcher, error) {
	return NewFileWatcher(WatchConfig{
		HistoryDir:    cfg.Dir,
		DebounceDelay: DefaultDebounceDelay,
	}, eventBus)
}

// ProviderSet 监听基础设施 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideEventBus,
	ProvideFileWatcher,
)
