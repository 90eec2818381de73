//go:build wireinject
// +build wireinject

// Wire依赖注入配置
// 生成: wire gen ./cmd/api,产出的wire_gen.go可替代app.go中的buildApp
package main

import (
	"context"

	"github.com/google/wire"

	"github.com/xiebiao/library/internal/infrastructure/config"
)

// infrastructureSet 存储、缓存、消息
var infrastructureSet = wire.NewSet(
	provideStorage,
	provideCache,
	provideEvents,
)

// applicationSet 应用服务
var applicationSet = wire.NewSet(
	provideJWTManager,
	provideLendingService,
	provideCatalogService,
)

// interfaceSet HTTP处理器与中间件
var interfaceSet = wire.NewSet(
	provideUserHandler,
	provideAuthMiddleware,
	provideHandlers,
	provideRouterOptions,
)

// InitializeApp Injector
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(
		infrastructureSet,
		applicationSet,
		interfaceSet,
		newApp,
	)
	return nil, nil
}
