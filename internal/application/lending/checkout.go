package lending

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/pkg/metrics"
)

// 加锁顺序统一为: 库存行 -> 在借记录行,避免不同操作间死锁

// CreateCheckout 借书
// 事务内步骤:
// 1. 图书、用户必须存在
// 2. 锁定库存行(FOR UPDATE),不可借则失败
// 3. 同一用户同一本书不能重复借(唯一索引兜底并发)
// 4. 插入在借记录,副本数-1,写库存流水
// 可借检查在重复检查之前:用户已借走最后一本时再借返回ErrBookUnavailable而非ErrDuplicateCheckout
func (s *Service) CreateCheckout(ctx context.Context, bookID, userID uint) (result *checkout.ActiveCheckout, err error) {
	ctx, finish := s.begin(ctx, "create_checkout")
	defer func() { finish(err) }()

	var committed *inventory.Record
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Books.FindByID(ctx, bookID); err != nil {
			return err
		}
		if _, err := s.repo.Users.FindByID(ctx, userID); err != nil {
			return err
		}

		rec, err := s.repo.Inventory.LockByBookID(ctx, bookID)
		if err != nil {
			return err
		}
		if !rec.Available {
			return checkout.ErrBookUnavailable
		}

		exists, err := s.repo.Checkouts.ExistsByUserAndBook(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if exists {
			return checkout.ErrDuplicateCheckout
		}

		now := s.now()
		c := checkout.New(bookID, userID, now)
		if err := s.repo.Checkouts.Create(ctx, c); err != nil {
			return err
		}

		if err := s.adjust(ctx, rec, inventory.ChangeTypeCheckout, &c.ID, func() error {
			return rec.Decrement(now)
		}); err != nil {
			return err
		}

		result, committed = c, rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &ports.Event{
		Type:       ports.EventCheckoutCreated,
		CheckoutID: result.ID,
		BookID:     result.BookID,
		UserID:     result.UserID,
		Status:     result.Status.String(),
	}, committed)
	return result, nil
}

// ReturnCheckout 按借阅ID归还(只改状态,不完结)
func (s *Service) ReturnCheckout(ctx context.Context, checkoutID uint) (result *checkout.ActiveCheckout, err error) {
	ctx, finish := s.begin(ctx, "return_checkout")
	defer func() { finish(err) }()

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.Checkouts.LockByID(ctx, checkoutID)
		if err != nil {
			return err
		}
		if err := s.markReturned(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, returnedEvent(result))
	return result, nil
}

// ReturnCheckoutByBook 按(图书,用户)归还
func (s *Service) ReturnCheckoutByBook(ctx context.Context, bookID, userID uint) (result *checkout.ActiveCheckout, err error) {
	ctx, finish := s.begin(ctx, "return_checkout")
	defer func() { finish(err) }()

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.Checkouts.LockByUserAndBook(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if err := s.markReturned(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, returnedEvent(result))
	return result, nil
}

// SetCheckoutStatus 显式设置状态;非法状态值在开事务前就拒绝
func (s *Service) SetCheckoutStatus(ctx context.Context, checkoutID uint, status string) (result *checkout.ActiveCheckout, err error) {
	ctx, finish := s.begin(ctx, "set_checkout_status")
	defer func() { finish(err) }()

	if _, err = checkout.ParseStatus(status); err != nil {
		return nil, err
	}

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		c, err := s.repo.Checkouts.LockByID(ctx, checkoutID)
		if err != nil {
			return err
		}
		if err := c.SetStatus(status, s.now()); err != nil {
			return err
		}
		if err := s.repo.Checkouts.Update(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, &ports.Event{
		Type:       ports.EventCheckoutStatusChanged,
		CheckoutID: result.ID,
		BookID:     result.BookID,
		UserID:     result.UserID,
		Status:     result.Status.String(),
	})
	return result, nil
}

// CompleteCheckout 完结借阅:归还入库、归档、删除在借记录
// 重复调用是幂等的:在借记录已删除时返回既有的历史记录,不再发事件和写缓存
// 并发完结同一条借阅时,后加锁的一方在锁内发现记录已删除,同样按重放处理
func (s *Service) CompleteCheckout(ctx context.Context, checkoutID uint) (result *checkout.ArchivedCheckout, err error) {
	ctx, finish := s.begin(ctx, "complete_checkout")
	defer func() { finish(err) }()

	gone := false
	var committed *inventory.Record
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		// 先无锁读取拿到BookID,以便按库存->借阅的顺序加锁
		c, err := s.repo.Checkouts.FindByID(ctx, checkoutID)
		if errors.Is(err, checkout.ErrCheckoutNotFound) {
			gone = true
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.CanComplete(); err != nil {
			return err
		}

		rec, err := s.repo.Inventory.LockByBookID(ctx, c.BookID)
		if err != nil {
			return err
		}
		// 加锁后重新读取,期间可能已被其他请求完结
		c, err = s.repo.Checkouts.LockByID(ctx, checkoutID)
		if errors.Is(err, checkout.ErrCheckoutNotFound) {
			gone = true
			return nil
		}
		if err != nil {
			return err
		}

		a, err := s.complete(ctx, c, rec)
		if err != nil {
			return err
		}
		result, committed = a, rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if gone {
		// 在事务外查询:可重复读的快照早于对方提交,事务内看不到对方写入的历史
		return s.archivedOf(ctx, checkoutID)
	}

	s.afterCommit(ctx, completedEvent(checkoutID, result), committed)
	return result, nil
}

// archivedOf 在借记录已不存在时按来源ID查找历史;都没有则是未知借阅
func (s *Service) archivedOf(ctx context.Context, checkoutID uint) (*checkout.ArchivedCheckout, error) {
	a, err := s.repo.Archives.FindBySourceCheckoutID(ctx, checkoutID)
	if errors.Is(err, checkout.ErrArchiveNotFound) {
		return nil, checkout.ErrCheckoutNotFound
	}
	return a, err
}

// ReturnBook 读者还书:归还并立即完结,一个事务完成
// 已是returned状态的借阅直接完结
func (s *Service) ReturnBook(ctx context.Context, bookID, userID uint) (result *checkout.ArchivedCheckout, err error) {
	ctx, finish := s.begin(ctx, "return_book")
	defer func() { finish(err) }()

	var (
		checkoutID uint
		committed  *inventory.Record
	)
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.Books.FindByID(ctx, bookID); err != nil {
			return err
		}
		rec, err := s.repo.Inventory.LockByBookID(ctx, bookID)
		if err != nil {
			return err
		}
		c, err := s.repo.Checkouts.LockByUserAndBook(ctx, userID, bookID)
		if err != nil {
			return err
		}
		checkoutID = c.ID

		if c.Status != checkout.StatusReturned {
			if err := s.markReturned(ctx, c); err != nil {
				return err
			}
		}

		a, err := s.complete(ctx, c, rec)
		if err != nil {
			return err
		}
		result, committed = a, rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, completedEvent(checkoutID, result), committed)
	return result, nil
}

// MarkOverdue 把超过应还日期仍为pending的借阅标记为overdue,返回处理条数
func (s *Service) MarkOverdue(ctx context.Context) (count int, err error) {
	ctx, finish := s.begin(ctx, "mark_overdue")
	defer func() { finish(err) }()

	var changed []*checkout.ActiveCheckout
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		now := s.now()
		due, err := s.repo.Checkouts.FindPendingDueBefore(ctx, now)
		if err != nil {
			return err
		}
		for _, c := range due {
			if !c.IsOverdue(now) {
				continue
			}
			if err := c.SetStatus(string(checkout.StatusOverdue), now); err != nil {
				return err
			}
			if err := s.repo.Checkouts.Update(ctx, c); err != nil {
				return err
			}
			changed = append(changed, c)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, c := range changed {
		s.afterCommit(ctx, &ports.Event{
			Type:       ports.EventCheckoutStatusChanged,
			CheckoutID: c.ID,
			BookID:     c.BookID,
			UserID:     c.UserID,
			Status:     c.Status.String(),
		})
	}
	if len(changed) > 0 {
		s.log.Info("逾期借阅已标记", zap.Int("count", len(changed)))
	}
	return len(changed), nil
}

// complete 完结的固定步骤,调用方已在事务中锁定rec和c
// (a) 副本数+1 (b) 按幂等键归档(已存在则不插入) (c) 删除在借记录
// (d) 确认该键只有一条历史,多余的保留ID最小的一条
func (s *Service) complete(ctx context.Context, c *checkout.ActiveCheckout, rec *inventory.Record) (*checkout.ArchivedCheckout, error) {
	if err := c.CanComplete(); err != nil {
		return nil, err
	}
	now := s.now()

	if err := s.adjust(ctx, rec, inventory.ChangeTypeReturn, &c.ID, func() error {
		rec.Increment(now)
		return nil
	}); err != nil {
		return nil, err
	}

	archive, err := checkout.NewArchive(c, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Archives.CreateIfAbsent(ctx, archive); err != nil {
		return nil, err
	}

	if err := s.repo.Checkouts.Delete(ctx, c.ID); err != nil {
		return nil, err
	}

	rows, err := s.repo.Archives.FindByKey(ctx, archive.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	keep, extras := checkout.Earliest(rows)
	if keep == nil {
		return nil, checkout.ErrArchiveNotFound
	}
	if len(extras) > 0 {
		if err := s.repo.Archives.DeleteByIDs(ctx, extras); err != nil {
			return nil, err
		}
		metrics.ArchiveDuplicatesCollapsed.Add(float64(len(extras)))
		s.log.Warn("归档出现重复记录,已保留最早一条",
			zap.String("key", archive.IdempotencyKey),
			zap.Uint("keep_id", keep.ID),
			zap.Uints("removed_ids", extras),
		)
	}
	return keep, nil
}

// markReturned 归还并持久化
func (s *Service) markReturned(ctx context.Context, c *checkout.ActiveCheckout) error {
	if err := c.Return(s.now()); err != nil {
		return err
	}
	return s.repo.Checkouts.Update(ctx, c)
}

// adjust 修改库存并写流水
func (s *Service) adjust(ctx context.Context, rec *inventory.Record, changeType inventory.ChangeType, checkoutID *uint, mutate func() error) error {
	before := rec.Copies
	if err := mutate(); err != nil {
		return err
	}
	if err := s.repo.Inventory.Update(ctx, rec); err != nil {
		return err
	}
	return s.repo.InventoryLogs.Create(ctx, inventory.NewLog(rec, changeType, before, checkoutID, s.now()))
}

func returnedEvent(c *checkout.ActiveCheckout) *ports.Event {
	return &ports.Event{
		Type:       ports.EventCheckoutReturned,
		CheckoutID: c.ID,
		BookID:     c.BookID,
		UserID:     c.UserID,
		Status:     c.Status.String(),
	}
}

func completedEvent(checkoutID uint, a *checkout.ArchivedCheckout) *ports.Event {
	return &ports.Event{
		Type:       ports.EventCheckoutCompleted,
		CheckoutID: checkoutID,
		BookID:     a.BookID,
		UserID:     a.UserID,
		ArchiveID:  a.ID,
	}
}
