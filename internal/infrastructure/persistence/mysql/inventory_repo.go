package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/inventory"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

type inventoryRepository struct {
	base
}

// NewInventoryRepository 创建库存仓储
func NewInventoryRepository(db *gorm.DB) inventory.Repository {
	return &inventoryRepository{base{db}}
}

func (r *inventoryRepository) Create(ctx context.Context, rec *inventory.Record) error {
	model := toInventoryModel(rec)
	if err := r.getDB(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		if isMissingReferenceError(err) {
			return book.ErrBookNotFound
		}
		if isDuplicateError(err) {
			return apperrors.New(apperrors.ErrCodeBusinessError, "库存记录已存在")
		}
		return apperrors.Wrap(err, "创建库存记录失败")
	}
	return nil
}

func (r *inventoryRepository) FindByBookID(ctx context.Context, bookID uint) (*inventory.Record, error) {
	return r.first(r.getDB(ctx).Where("book_id = ?", bookID))
}

// LockByBookID SELECT ... FOR UPDATE,必须在事务内调用
// 同一本书的借出/归还/调整在这一行上串行
func (r *inventoryRepository) LockByBookID(ctx context.Context, bookID uint) (*inventory.Record, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("book_id = ?", bookID))
}

func (r *inventoryRepository) first(query *gorm.DB) (*inventory.Record, error) {
	var model InventoryRecordModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "查询库存失败")
	}
	return toInventoryEntity(&model), nil
}

func (r *inventoryRepository) FindByBookIDs(ctx context.Context, bookIDs []uint) (map[uint]*inventory.Record, error) {
	out := make(map[uint]*inventory.Record, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}

	var models []InventoryRecordModel
	if err := r.getDB(ctx).Where("book_id IN ?", bookIDs).Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "批量查询库存失败")
	}
	for i := range models {
		out[models[i].BookID] = toInventoryEntity(&models[i])
	}
	return out, nil
}

// Update 写回副本数、可借标志和版本号(由领域实体同时计算)
// 调用方已持有行锁,值未变化时RowsAffected为0,不作为不存在处理
func (r *inventoryRepository) Update(ctx context.Context, rec *inventory.Record) error {
	if rec.Copies < 0 {
		return inventory.ErrInvalidCopies
	}
	result := r.getDB(ctx).Model(&InventoryRecordModel{}).Where("book_id = ?", rec.BookID).Updates(map[string]interface{}{
		"copies":     rec.Copies,
		"available":  rec.Available,
		"version":    rec.Version,
		"updated_at": rec.UpdatedAt,
	})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新库存失败")
	}
	return nil
}

func (r *inventoryRepository) DeleteByBookID(ctx context.Context, bookID uint) error {
	if err := r.getDB(ctx).Where("book_id = ?", bookID).Delete(&InventoryRecordModel{}).Error; err != nil {
		return apperrors.Wrap(err, "删除库存记录失败")
	}
	return nil
}

func (r *inventoryRepository) List(ctx context.Context, page, pageSize int) ([]*inventory.Record, int64, error) {
	var (
		models []InventoryRecordModel
		total  int64
	)
	query := r.getDB(ctx).Model(&InventoryRecordModel{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询库存总数失败")
	}
	if err := paged(query.Order("book_id ASC"), page, pageSize).Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询库存列表失败")
	}

	list := make([]*inventory.Record, len(models))
	for i := range models {
		list[i] = toInventoryEntity(&models[i])
	}
	return list, total, nil
}

type inventoryLogRepository struct {
	base
}

// NewInventoryLogRepository 创建库存流水仓储
func NewInventoryLogRepository(db *gorm.DB) inventory.LogRepository {
	return &inventoryLogRepository{base{db}}
}

func (r *inventoryLogRepository) Create(ctx context.Context, l *inventory.Log) error {
	model := &InventoryLogModel{
		BookID:      l.BookID,
		ChangeType:  string(l.ChangeType),
		Delta:       l.Delta,
		CopiesAfter: l.CopiesAfter,
		CheckoutID:  l.CheckoutID,
		CreatedAt:   l.CreatedAt,
	}
	if err := r.getDB(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		return apperrors.Wrap(err, "写入库存流水失败")
	}
	l.ID = model.ID
	return nil
}

func (r *inventoryLogRepository) ListByBookID(ctx context.Context, bookID uint, page, pageSize int) ([]*inventory.Log, int64, error) {
	var (
		models []InventoryLogModel
		total  int64
	)
	query := r.getDB(ctx).Model(&InventoryLogModel{}).Where("book_id = ?", bookID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询库存流水总数失败")
	}
	if err := paged(query.Order("id DESC"), page, pageSize).Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询库存流水失败")
	}

	logs := make([]*inventory.Log, len(models))
	for i, m := range models {
		logs[i] = &inventory.Log{
			ID:          m.ID,
			BookID:      m.BookID,
			ChangeType:  inventory.ChangeType(m.ChangeType),
			Delta:       m.Delta,
			CopiesAfter: m.CopiesAfter,
			CheckoutID:  m.CheckoutID,
			CreatedAt:   m.CreatedAt,
		}
	}
	return logs, total, nil
}

func (r *inventoryLogRepository) DeleteByBookID(ctx context.Context, bookID uint) error {
	if err := r.getDB(ctx).Where("book_id = ?", bookID).Delete(&InventoryLogModel{}).Error; err != nil {
		return apperrors.Wrap(err, "删除库存流水失败")
	}
	return nil
}

// paged 分页,pageSize<=0时不分页
func paged(query *gorm.DB, page, pageSize int) *gorm.DB {
	if pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

func toInventoryModel(rec *inventory.Record) *InventoryRecordModel {
	return &InventoryRecordModel{
		BookID:    rec.BookID,
		Copies:    rec.Copies,
		Available: rec.Available,
		Version:   rec.Version,
		DateAdded: rec.DateAdded,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toInventoryEntity(model *InventoryRecordModel) *inventory.Record {
	return &inventory.Record{
		BookID:    model.BookID,
		Copies:    model.Copies,
		Available: model.Available,
		Version:   model.Version,
		DateAdded: model.DateAdded,
		UpdatedAt: model.UpdatedAt,
	}
}
