package lending

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	apperrors "github.com/xiebiao/library/pkg/errors"
	"github.com/xiebiao/library/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Actor 当前操作者(由认证中间件解析)
type Actor struct {
	UserID    uint
	Librarian bool
}

// CanAccess 本人或馆员
func (a Actor) CanAccess(ownerID uint) bool {
	return a.Librarian || a.UserID == ownerID
}

// GetInventory 查询库存(先查缓存)
func (s *Service) GetInventory(ctx context.Context, bookID uint) (*inventory.Record, error) {
	cached, err := s.cache.Get(ctx, bookID)
	switch {
	case err != nil:
		metrics.InventoryCacheRequests.WithLabelValues("error").Inc()
		s.log.Warn("读取库存缓存失败", zap.Uint("book_id", bookID), zap.Error(err))
	case cached != nil:
		metrics.InventoryCacheRequests.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		metrics.InventoryCacheRequests.WithLabelValues("miss").Inc()
	}

	rec, err := s.repo.Inventory.FindByBookID(ctx, bookID)
	if errors.Is(err, inventory.ErrRecordNotFound) {
		// 区分"书不存在"和"书存在但缺库存记录"
		if _, berr := s.repo.Books.FindByID(ctx, bookID); berr != nil {
			return nil, berr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, rec); err != nil {
		s.log.Warn("写入库存缓存失败", zap.Uint("book_id", bookID), zap.Error(err))
	}
	return rec, nil
}

// ListInventory 库存列表
func (s *Service) ListInventory(ctx context.Context, page, pageSize int) ([]*inventory.Record, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.Inventory.List(ctx, page, pageSize)
}

// ListInventoryLogs 库存流水
func (s *Service) ListInventoryLogs(ctx context.Context, bookID uint, page, pageSize int) ([]*inventory.Log, int64, error) {
	if _, err := s.repo.Books.FindByID(ctx, bookID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.repo.InventoryLogs.ListByBookID(ctx, bookID, page, pageSize)
}

// GetCheckout 查询单条借阅,只有本人或馆员可见
func (s *Service) GetCheckout(ctx context.Context, actor Actor, checkoutID uint) (*checkout.ActiveCheckout, error) {
	c, err := s.repo.Checkouts.FindByID(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(c.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return c, nil
}

// ListCheckouts 在借列表,普通读者只能看自己的
func (s *Service) ListCheckouts(ctx context.Context, actor Actor, params checkout.ListParams) ([]*checkout.ActiveCheckout, int64, error) {
	if !actor.Librarian {
		params.UserID = actor.UserID
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	return s.repo.Checkouts.List(ctx, params)
}

// ListHistory 借阅历史,普通读者只能看自己的
func (s *Service) ListHistory(ctx context.Context, actor Actor, params checkout.ListParams) ([]*checkout.ArchivedCheckout, int64, error) {
	if !actor.Librarian {
		params.UserID = actor.UserID
	}
	params.Status = ""
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	return s.repo.Archives.List(ctx, params)
}

// DeleteArchived 管理员删除历史记录
func (s *Service) DeleteArchived(ctx context.Context, archiveID uint) error {
	return s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Archives.FindByID(ctx, archiveID); err != nil {
			return err
		}
		return s.repo.Archives.DeleteByIDs(ctx, []uint{archiveID})
	})
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
