package infrastructure

import (
	"github.com/google/wire"

	"github.com/chatgroup/backend/internal/infrastructure/config"
	"github.com/chatgroup/backend/internal/infrastructure/history"
	"github.com/chatgroup/backend/internal/infrastructure/storage"
	"github.com/chatgroup/backend/internal/infrastructure/tokenizer"
	"github.com/chatgroup/backend/internal/infrastructure/watcher"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	tokenizer.ProviderSet,
	history.ProviderSet,
	watcher.ProviderSet,
)
