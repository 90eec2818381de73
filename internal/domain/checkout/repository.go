package checkout

import (
	"context"
	"time"
)

// Repository 在借记录仓储
type Repository interface {
	// Create 插入记录;(user_id, book_id)唯一冲突时返回ErrDuplicateCheckout
	Create(ctx context.Context, c *ActiveCheckout) error

	FindByID(ctx context.Context, id uint) (*ActiveCheckout, error)

	// LockByID SELECT ... FOR UPDATE,必须在事务中调用
	LockByID(ctx context.Context, id uint) (*ActiveCheckout, error)

	// LockByUserAndBook 按(用户,图书)加锁查询,不存在返回ErrCheckoutNotFound
	LockByUserAndBook(ctx context.Context, userID, bookID uint) (*ActiveCheckout, error)

	ExistsByUserAndBook(ctx context.Context, userID, bookID uint) (bool, error)

	Update(ctx context.Context, c *ActiveCheckout) error

	Delete(ctx context.Context, id uint) error

	// List 按借出时间倒序
	List(ctx context.Context, params ListParams) ([]*ActiveCheckout, int64, error)

	// FindPendingDueBefore 查询应还时间早于t且仍为pending的记录
	FindPendingDueBefore(ctx context.Context, t time.Time) ([]*ActiveCheckout, error)

	CountByBook(ctx context.Context, bookID uint) (int64, error)

	CountByUser(ctx context.Context, userID uint) (int64, error)
}

// ArchiveRepository 借阅历史仓储
type ArchiveRepository interface {
	// CreateIfAbsent 按幂等键插入,已存在则不做任何事(upsert-or-no-op)
	// created表示本次是否真正插入
	CreateIfAbsent(ctx context.Context, a *ArchivedCheckout) (created bool, err error)

	// FindByKey 返回同一幂等键的全部记录,按ID升序
	FindByKey(ctx context.Context, key string) ([]*ArchivedCheckout, error)

	FindByID(ctx context.Context, id uint) (*ArchivedCheckout, error)

	FindBySourceCheckoutID(ctx context.Context, checkoutID uint) (*ArchivedCheckout, error)

	DeleteByIDs(ctx context.Context, ids []uint) error

	// List 按归还时间倒序
	List(ctx context.Context, params ListParams) ([]*ArchivedCheckout, int64, error)

	CountByBook(ctx context.Context, bookID uint) (int64, error)

	CountByUser(ctx context.Context, userID uint) (int64, error)
}

// ListParams 列表查询参数
type ListParams struct {
	UserID   uint   // 0表示不过滤(管理员查看全部)
	BookID   uint   // 0表示不过滤
	Status   Status // 空表示不过滤,只对在借记录有效
	Page     int
	PageSize int
}
