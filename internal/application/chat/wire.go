package chat

import "github.com/google/wire"

// ProviderSet 群聊应用服务 ProviderSet
var ProviderSet = wire.NewSet(
	NewContextService,
	NewMessageService,
	NewHistoryService,
	NewExportService,
	NewSessionService,
)
