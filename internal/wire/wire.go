//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"github.com/chatgroup/backend/internal/application"
	"github.com/chatgroup/backend/internal/infrastructure"
	"github.com/chatgroup/backend/internal/interfaces"
)

// InitializeAll 初始化所有服务（HTTP + MCP），返回的清理函数关闭数据库
func InitializeAll() (*App, func(), error) {
	wire.Build(
		infrastructure.ProviderSet, // 基础设施层
		application.ProviderSet,    // 应用层
		interfaces.ProviderSet,     // 接口层
		NewApp,
	)
	return nil, nil, nil
}
