package storage

import (
	"github.com/google/wire"

	"github.com/chatgroup/backend/internal/domain/chat"
)

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,         // 提供数据库连接
	NewChatRepository, // 群聊仓储
	wire.Bind(new(chat.Repository), new(*ChatRepository)),
	wire.Bind(new(chat.AdminRepository), new(*ChatRepository)),
)
