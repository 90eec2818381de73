// Package ports 应用层依赖的基础设施接口
package ports

import (
	"context"
	"time"

	"github.com/xiebiao/library/internal/domain/inventory"
)

// Transactor 事务管理器
// fn内通过ctx拿到同一事务,fn返回错误或ctx取消时整体回滚
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryCache 库存读缓存
// 未命中返回(nil, nil);Set按Record.Version比较,缓存中已有同版本或更新版本时不写入
// 读路径未命中回填,写操作提交后写入最新记录;Invalidate用于删除图书等记录不复存在的场景
type InventoryCache interface {
	Get(ctx context.Context, bookID uint) (*inventory.Record, error)
	Set(ctx context.Context, r *inventory.Record) error
	Invalidate(ctx context.Context, bookIDs ...uint) error
}

// SessionStore 登录会话与Token黑名单
// Key约定: {prefix}session:{user_id}、{prefix}blacklist:{token}
type SessionStore interface {
	SaveSession(ctx context.Context, userID uint, data map[string]interface{}, ttl time.Duration) error
	DeleteSession(ctx context.Context, userID uint) error
	AddToBlacklist(ctx context.Context, token string, ttl time.Duration) error
	IsInBlacklist(ctx context.Context, token string) (bool, error)
}

// 借阅生命周期事件
const (
	EventCheckoutCreated       = "checkout.created"
	EventCheckoutReturned      = "checkout.returned"
	EventCheckoutStatusChanged = "checkout.status_changed"
	EventCheckoutCompleted     = "checkout.completed"
)

// Event 事务提交后发布的领域事件
type Event struct {
	Type       string    `json:"type"`
	CheckoutID uint      `json:"checkout_id"`
	BookID     uint      `json:"book_id"`
	UserID     uint      `json:"user_id"`
	Status     string    `json:"status,omitempty"`
	ArchiveID  uint      `json:"archive_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher 事件发布
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopCache 不缓存
type NopCache struct{}

func (NopCache) Get(context.Context, uint) (*inventory.Record, error) { return nil, nil }
func (NopCache) Set(context.Context, *inventory.Record) error         { return nil }
func (NopCache) Invalidate(context.Context, ...uint) error            { return nil }

// NopPublisher 丢弃事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
