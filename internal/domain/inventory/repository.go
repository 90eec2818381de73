package inventory

import "context"

// Repository 库存仓储
type Repository interface {
	Create(ctx context.Context, r *Record) error

	FindByBookID(ctx context.Context, bookID uint) (*Record, error)

	// LockByBookID SELECT ... FOR UPDATE,必须在事务中调用
	LockByBookID(ctx context.Context, bookID uint) (*Record, error)

	FindByBookIDs(ctx context.Context, bookIDs []uint) (map[uint]*Record, error)

	Update(ctx context.Context, r *Record) error

	DeleteByBookID(ctx context.Context, bookID uint) error

	List(ctx context.Context, page, pageSize int) ([]*Record, int64, error)
}

// LogRepository 库存流水仓储
type LogRepository interface {
	Create(ctx context.Context, log *Log) error

	ListByBookID(ctx context.Context, bookID uint, page, pageSize int) ([]*Log, int64, error)

	DeleteByBookID(ctx context.Context, bookID uint) error
}
