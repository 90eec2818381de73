// Package lending 借阅一致性协调:在一个事务里按固定顺序完成
// 库存增减、在借记录变更和历史归档,任一步失败整体回滚。
package lending

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/internal/domain/user"
	"github.com/xiebiao/library/pkg/logger"
	"github.com/xiebiao/library/pkg/metrics"
	"github.com/xiebiao/library/pkg/tracing"
)

const tracerName = "library/lending"

// Repositories 协调器用到的全部仓储
type Repositories struct {
	Books         book.Repository
	Users         user.Repository
	Inventory     inventory.Repository
	InventoryLogs inventory.LogRepository
	Checkouts     checkout.Repository
	Archives      checkout.ArchiveRepository
}

// Service 借阅服务
type Service struct {
	tx   ports.Transactor
	repo Repositories

	cache  ports.InventoryCache
	events ports.EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// Option 可选依赖
type Option func(*Service)

// WithCache 启用库存缓存
func WithCache(c ports.InventoryCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithPublisher 启用事件发布
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithClock 替换时钟(测试用)
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger 替换Logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService 创建借阅服务
func NewService(tx ports.Transactor, repos Repositories, opts ...Option) *Service {
	s := &Service{
		tx:     tx,
		repo:   repos,
		cache:  ports.NopCache{},
		events: ports.NopPublisher{},
		now:    defaultNow,
		log:    logger.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// 时间精确到秒并使用UTC,与数据库DATETIME保持一致,归档幂等键才能复现
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// begin 开始一次被观测的操作,返回的finish需在操作结束时调用
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "lending."+op)
	return ctx, func(err error) {
		metrics.ObserveLending(op, start, err)
		tracing.EndSpan(span, err)
	}
}

// afterCommit 事务提交后的副作用:写穿库存缓存、发事件
// 失败只记日志,业务结果以数据库为准;写缓存失败时退化为删除key
func (s *Service) afterCommit(ctx context.Context, e *ports.Event, recs ...*inventory.Record) {
	for _, rec := range recs {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.log.Warn("写入库存缓存失败,改为删除", zap.Uint("book_id", rec.BookID), zap.Error(err))
			if err := s.cache.Invalidate(ctx, rec.BookID); err != nil {
				s.log.Warn("删除库存缓存失败", zap.Uint("book_id", rec.BookID), zap.Error(err))
			}
		}
	}
	if e == nil {
		return
	}
	e.OccurredAt = s.now()
	if err := s.events.Publish(ctx, *e); err != nil {
		s.log.Warn("发布借阅事件失败", zap.String("type", e.Type), zap.Uint("checkout_id", e.CheckoutID), zap.Error(err))
	}
}
