package history

import (
	"github.com/google/wire"

	domainHistory "github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/config"
)

// ProvideFileStore 使用配置中的历史目录创建存储
func ProvideFileStore(cfg *config.HistoryConfig, estimator domainHistory.TokenEstimator) *FileStore {
	return NewFileStore(cfg.Dir, estimator)
}

// ProviderSet history 包的 provider
var ProviderSet = wire.NewSet(
	ProvideFileStore,
	wire.Bind(new(domainHistory.Store), new(*FileStore)),
)
