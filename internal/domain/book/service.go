package book

import (
	"context"
	"errors"
	"time"
)

// Service 图书领域服务
// 负责规范化、格式校验以及书名/ISBN唯一性检查
type Service interface {
	// Register 新建图书(不负责库存记录,由应用层在同一事务里创建)
	Register(ctx context.Context, title, author, isbn string, published *time.Time) (*Book, error)

	// Revise 修改图书信息,空值字段保持不变
	Revise(ctx context.Context, id uint, title, author, isbn string, published *time.Time, clearPublished bool) (*Book, error)

	GetBookByID(ctx context.Context, id uint) (*Book, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService 创建图书领域服务
func NewService(repo Repository) Service {
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC().Truncate(time.Second) }}
}

func (s *service) Register(ctx context.Context, title, author, isbn string, published *time.Time) (*Book, error) {
	b, err := NewBook(title, author, isbn, published, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, b, 0); err != nil {
		return nil, err
	}

	// 唯一索引兜底并发插入,仓储层把冲突转换成ErrTitleDuplicate/ErrISBNDuplicate
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Revise(ctx context.Context, id uint, title, author, isbn string, published *time.Time, clearPublished bool) (*Book, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := b.Revise(title, author, isbn, published, clearPublished, s.now()); err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, b, b.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) GetBookByID(ctx context.Context, id uint) (*Book, error) {
	return s.repo.FindByID(ctx, id)
}

// checkUnique 书名和ISBN不能与其他图书重复(selfID为自身ID,新建时为0)
func (s *service) checkUnique(ctx context.Context, b *Book, selfID uint) error {
	existing, err := s.repo.FindByTitle(ctx, b.Title)
	if err == nil && existing.ID != selfID {
		return ErrTitleDuplicate
	}
	if err != nil && !errors.Is(err, ErrBookNotFound) {
		return err
	}

	existing, err = s.repo.FindByISBN(ctx, b.ISBN)
	if err == nil && existing.ID != selfID {
		return ErrISBNDuplicate
	}
	if err != nil && !errors.Is(err, ErrBookNotFound) {
		return err
	}
	return nil
}
