// Package catalog 图书目录用例:上架、修改、下架、查询
// 图书和库存记录在同一事务里维护
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repositories 目录用例依赖的仓储
type Repositories struct {
	Books         book.Repository
	Inventory     inventory.Repository
	InventoryLogs inventory.LogRepository
	Checkouts     checkout.Repository
	Archives      checkout.ArchiveRepository
}

// Service 目录服务
type Service struct {
	tx    ports.Transactor
	books book.Service
	repo  Repositories
	cache ports.InventoryCache
	now   func() time.Time
	log   *zap.Logger
}

// NewService 创建目录服务,cache可为nil
func NewService(tx ports.Transactor, books book.Service, repos Repositories, cache ports.InventoryCache) *Service {
	if cache == nil {
		cache = ports.NopCache{}
	}
	return &Service{
		tx:    tx,
		books: books,
		repo:  repos,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		log:   logger.L(),
	}
}

// BookDetail 图书及其库存
type BookDetail struct {
	Book      *book.Book
	Inventory *inventory.Record // 缺失库存记录时为nil
}

// CreateBookRequest 上架请求
type CreateBookRequest struct {
	Title         string
	Author        string
	ISBN          string
	PublishedDate *time.Time
	Copies        int
}

// UpdateBookRequest 修改请求,零值字段不修改
type UpdateBookRequest struct {
	Title          string
	Author         string
	ISBN           string
	PublishedDate  *time.Time
	ClearPublished bool
	Copies         *int
}

// ListBooksRequest 列表查询
type ListBooksRequest struct {
	Page          int
	PageSize      int
	Keyword       string
	Author        string
	AvailableOnly bool
}

// CreateBook 新书上架
// 1. 规范化并校验图书字段,检查书名/ISBN唯一
// 2. 同一事务创建库存记录(默认0副本)
// 3. 初始副本数大于0时写一条restock流水
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (*BookDetail, error) {
	if req.Copies < 0 {
		return nil, inventory.ErrInvalidCopies
	}

	var out BookDetail
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		b, err := s.books.Register(ctx, req.Title, req.Author, req.ISBN, req.PublishedDate)
		if err != nil {
			return err
		}

		now := s.now()
		rec, err := inventory.NewRecord(b.ID, req.Copies, now)
		if err != nil {
			return err
		}
		if err := s.repo.Inventory.Create(ctx, rec); err != nil {
			return err
		}
		if rec.Copies > 0 {
			if err := s.repo.InventoryLogs.Create(ctx, inventory.NewLog(rec, inventory.ChangeTypeRestock, 0, nil, now)); err != nil {
				return err
			}
		}

		out = BookDetail{Book: b, Inventory: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("图书上架",
		zap.Uint("book_id", out.Book.ID),
		zap.String("isbn", out.Book.ISBN),
		zap.Int("copies", out.Inventory.Copies),
	)
	return &out, nil
}

// UpdateBook 修改图书信息,可同时调整副本数
func (s *Service) UpdateBook(ctx context.Context, id uint, req UpdateBookRequest) (*BookDetail, error) {
	if req.Copies != nil && *req.Copies < 0 {
		return nil, inventory.ErrInvalidCopies
	}

	var out BookDetail
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		b, err := s.books.Revise(ctx, id, req.Title, req.Author, req.ISBN, req.PublishedDate, req.ClearPublished)
		if err != nil {
			return err
		}
		out.Book = b

		if req.Copies == nil {
			rec, err := s.repo.Inventory.FindByBookID(ctx, id)
			if err != nil {
				return err
			}
			out.Inventory = rec
			return nil
		}

		rec, err := s.repo.Inventory.LockByBookID(ctx, id)
		if err != nil {
			return err
		}
		before := rec.Copies
		now := s.now()
		if err := rec.SetCopies(*req.Copies, now); err != nil {
			return err
		}
		if err := s.repo.Inventory.Update(ctx, rec); err != nil {
			return err
		}
		if rec.Copies != before {
			if err := s.repo.InventoryLogs.Create(ctx, inventory.NewLog(rec, inventory.ChangeTypeAdjust, before, nil, now)); err != nil {
				return err
			}
		}
		out.Inventory = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.Copies != nil {
		s.refresh(ctx, out.Inventory)
	}
	return &out, nil
}

// DeleteBook 下架图书:仍有在借记录或历史记录时拒绝,否则连同库存记录和流水一起删除
func (s *Service) DeleteBook(ctx context.Context, id uint) error {
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Books.FindByID(ctx, id); err != nil {
			return err
		}

		active, err := s.repo.Checkouts.CountByBook(ctx, id)
		if err != nil {
			return err
		}
		archived, err := s.repo.Archives.CountByBook(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 || archived > 0 {
			return book.ErrBookInUse
		}

		if err := s.repo.InventoryLogs.DeleteByBookID(ctx, id); err != nil {
			return err
		}
		if err := s.repo.Inventory.DeleteByBookID(ctx, id); err != nil {
			return err
		}
		return s.repo.Books.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.log.Info("图书下架", zap.Uint("book_id", id))
	return nil
}

// GetBook 图书详情
func (s *Service) GetBook(ctx context.Context, id uint) (*BookDetail, error) {
	b, err := s.books.GetBookByID(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.Inventory.FindByBookIDs(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	return &BookDetail{Book: b, Inventory: recs[id]}, nil
}

// ListBooks 图书列表,AvailableOnly时按副本数倒序
func (s *Service) ListBooks(ctx context.Context, req ListBooksRequest) ([]*BookDetail, int64, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	books, total, err := s.repo.Books.List(ctx, book.ListParams{
		Page:          req.Page,
		PageSize:      req.PageSize,
		Keyword:       req.Keyword,
		Author:        book.TitleCase(req.Author),
		AvailableOnly: req.AvailableOnly,
	})
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}
	recs, err := s.repo.Inventory.FindByBookIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	list := make([]*BookDetail, len(books))
	for i, b := range books {
		list[i] = &BookDetail{Book: b, Inventory: recs[b.ID]}
	}
	return list, total, nil
}

// refresh 提交后写入最新库存,写失败时删除key
func (s *Service) refresh(ctx context.Context, rec *inventory.Record) {
	if err := s.cache.Set(ctx, rec); err != nil {
		s.log.Warn("写入库存缓存失败,改为删除", zap.Uint("book_id", rec.BookID), zap.Error(err))
		s.invalidate(ctx, rec.BookID)
	}
}

func (s *Service) invalidate(ctx context.Context, bookID uint) {
	if err := s.cache.Invalidate(ctx, bookID); err != nil {
		s.log.Warn("删除库存缓存失败", zap.Uint("book_id", bookID), zap.Error(err))
	}
}
