package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/catalog"
	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/application/ports"
	appuser "github.com/xiebiao/library/internal/application/user"
	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/user"
	"github.com/xiebiao/library/internal/infrastructure/config"
	"github.com/xiebiao/library/internal/infrastructure/messaging"
	"github.com/xiebiao/library/internal/infrastructure/persistence/memory"
	"github.com/xiebiao/library/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/library/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/library/internal/interface/http/handler"
	"github.com/xiebiao/library/internal/interface/http/middleware"
	"github.com/xiebiao/library/internal/interface/http/router"
	"github.com/xiebiao/library/pkg/circuitbreaker"
	"github.com/xiebiao/library/pkg/jwt"
	"github.com/xiebiao/library/pkg/logger"
	"github.com/xiebiao/library/pkg/mq"
)

// Storage 按database.driver选择的存储实现
type Storage struct {
	Tx     ports.Transactor
	Repos  lending.Repositories
	Health func(ctx context.Context) error
	Close  func()
}

// provideStorage mysql或memory
func provideStorage(cfg *config.Config) (*Storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.L().Warn("使用内存存储,数据不会持久化")
		store := memory.NewStore()
		return &Storage{
			Tx: store,
			Repos: lending.Repositories{
				Books:         store.Books(),
				Users:         store.Users(),
				Inventory:     store.Inventory(),
				InventoryLogs: store.InventoryLogs(),
				Checkouts:     store.Checkouts(),
				Archives:      store.Archives(),
			},
			Close: func() {},
		}, nil
	}

	db, err := mysql.NewDB(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	return &Storage{
		Tx: mysql.NewTxManager(db),
		Repos: lending.Repositories{
			Books:         mysql.NewBookRepository(db),
			Users:         mysql.NewUserRepository(db),
			Inventory:     mysql.NewInventoryRepository(db),
			InventoryLogs: mysql.NewInventoryLogRepository(db),
			Checkouts:     mysql.NewCheckoutRepository(db),
			Archives:      mysql.NewArchiveRepository(db),
		},
		Health: sqlDB.PingContext,
		Close: func() {
			if err := sqlDB.Close(); err != nil {
				logger.L().Warn("关闭数据库连接失败", zap.Error(err))
			}
		},
	}, nil
}

// Cache 会话存储和库存缓存;未启用Redis时退化为进程内实现
type Cache struct {
	Sessions  ports.SessionStore
	Inventory ports.InventoryCache
	Close     func()
}

func provideCache(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if !cfg.Redis.Enabled {
		return &Cache{
			Sessions:  memory.NewSessionStore(),
			Inventory: ports.NopCache{},
			Close:     func() {},
		}, nil
	}

	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return &Cache{
		Sessions:  redis.NewSessionStore(client),
		Inventory: redis.NewInventoryCache(client, cfg.Redis.CacheTTL),
		Close:     closeRedis(client),
	}, nil
}

func closeRedis(client *goredis.Client) func() {
	return func() {
		if err := client.Close(); err != nil {
			logger.L().Warn("关闭Redis连接失败", zap.Error(err))
		}
	}
}

// Events 生命周期事件发布;未启用MQ时丢弃
type Events struct {
	Publisher ports.EventPublisher
	Close     func()
}

func provideEvents(cfg *config.Config) (*Events, error) {
	if !cfg.MQ.Enabled {
		return &Events{Publisher: ports.NopPublisher{}, Close: func() {}}, nil
	}

	pub, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange, cfg.MQ.ExchangeType)
	if err != nil {
		return nil, err
	}
	breaker := circuitbreaker.New("mq-publisher", circuitbreaker.DefaultConfig())
	return &Events{
		Publisher: messaging.NewEventPublisher(pub, breaker),
		Close: func() {
			if err := pub.Close(); err != nil {
				logger.L().Warn("关闭MQ连接失败", zap.Error(err))
			}
		},
	}, nil
}

func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpire, cfg.JWT.RefreshTokenExpire)
}

func provideLendingService(s *Storage, c *Cache, e *Events) *lending.Service {
	return lending.NewService(s.Tx, s.Repos,
		lending.WithCache(c.Inventory),
		lending.WithPublisher(e.Publisher),
		lending.WithLogger(logger.L().Named("lending")),
	)
}

func provideCatalogService(s *Storage, c *Cache) *catalog.Service {
	return catalog.NewService(s.Tx, book.NewService(s.Repos.Books), catalog.Repositories{
		Books:         s.Repos.Books,
		Inventory:     s.Repos.Inventory,
		InventoryLogs: s.Repos.InventoryLogs,
		Checkouts:     s.Repos.Checkouts,
		Archives:      s.Repos.Archives,
	}, c.Inventory)
}

func provideUserHandler(cfg *config.Config, s *Storage, c *Cache, jm *jwt.Manager) *handler.UserHandler {
	users := user.NewService(s.Repos.Users, cfg.Auth.LibrarianEmails)
	return handler.NewUserHandler(
		appuser.NewRegisterUseCase(users),
		appuser.NewLoginUseCase(users, jm, c.Sessions),
		appuser.NewLogoutUseCase(c.Sessions, jm),
		appuser.NewRefreshUseCase(jm),
		appuser.NewChangePasswordUseCase(users, c.Sessions, jm),
		appuser.NewGetProfileUseCase(s.Repos.Users),
		appuser.NewDeleteUserUseCase(s.Tx, s.Repos.Users, s.Repos.Checkouts, s.Repos.Archives, c.Sessions),
	)
}

func provideAuthMiddleware(c *Cache, jm *jwt.Manager) *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(jm, c.Sessions)
}

func provideHandlers(
	userHandler *handler.UserHandler,
	lendingService *lending.Service,
	catalogService *catalog.Service,
	auth *middleware.AuthMiddleware,
) router.Handlers {
	return router.Handlers{
		User:     userHandler,
		Book:     handler.NewBookHandler(catalogService, lendingService),
		Checkout: handler.NewCheckoutHandler(lendingService),
		History:  handler.NewHistoryHandler(lendingService),
		Auth:     auth,
	}
}

func provideRouterOptions(cfg *config.Config, s *Storage) router.Options {
	return router.Options{
		Mode:          cfg.Server.Mode,
		EnableSwagger: cfg.Server.EnableSwagger,
		EnableMetrics: cfg.Metrics.Enabled,
		MetricsPath:   cfg.Metrics.Path,
		EnableTracing: cfg.Tracing.Enabled,
		HealthCheck:   s.Health,
	}
}

// App 组装完成的应用
type App struct {
	Router  router.Handlers
	Options router.Options
	cleanup []func()
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func newApp(h router.Handlers, opts router.Options, s *Storage, c *Cache, e *Events) *App {
	return &App{Router: h, Options: opts, cleanup: []func(){s.Close, c.Close, e.Close}}
}

// buildApp 手动依赖注入,顺序与wire.go中的Provider一致
func buildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	storage, err := provideStorage(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := provideCache(ctx, cfg)
	if err != nil {
		storage.Close()
		return nil, err
	}
	events, err := provideEvents(cfg)
	if err != nil {
		cache.Close()
		storage.Close()
		return nil, err
	}

	jm := provideJWTManager(cfg)
	handlers := provideHandlers(
		provideUserHandler(cfg, storage, cache, jm),
		provideLendingService(storage, cache, events),
		provideCatalogService(storage, cache),
		provideAuthMiddleware(cache, jm),
	)
	return newApp(handlers, provideRouterOptions(cfg, storage), storage, cache, events), nil
}
