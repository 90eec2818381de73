package book

import (
	"context"
)

// Repository 图书仓储接口
// domain层定义,infrastructure层(mysql/memory)实现
type Repository interface {
	Create(ctx context.Context, book *Book) error

	FindByID(ctx context.Context, id uint) (*Book, error)

	FindByISBN(ctx context.Context, isbn string) (*Book, error)

	FindByTitle(ctx context.Context, title string) (*Book, error)

	Update(ctx context.Context, book *Book) error

	// Delete 物理删除,库存记录随之级联删除
	// 仍被借阅记录引用时返回ErrBookInUse
	Delete(ctx context.Context, id uint) error

	// List 分页查询
	// AvailableOnly为true时只返回有可借副本的图书,按副本数倒序
	List(ctx context.Context, params ListParams) ([]*Book, int64, error)
}

// ListParams 列表查询参数
type ListParams struct {
	Page          int    // 从1开始
	PageSize      int
	Keyword       string // 模糊匹配书名、作者、ISBN
	Author        string // 精确匹配作者(规范化后)
	AvailableOnly bool
}
