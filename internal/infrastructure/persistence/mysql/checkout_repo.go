package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/library/internal/domain/checkout"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// checkoutRepository 在借记录仓储
// 加锁方法(Lock*)必须在事务内调用,加锁顺序由应用层保证:库存行在前
type checkoutRepository struct {
	base
}

// NewCheckoutRepository 创建在借记录仓储
func NewCheckoutRepository(db *gorm.DB) checkout.Repository {
	return &checkoutRepository{base{db}}
}

// Create 插入在借记录
// (user_id, book_id)唯一索引冲突即重复借阅
func (r *checkoutRepository) Create(ctx context.Context, c *checkout.ActiveCheckout) error {
	model := toCheckoutModel(c)
	if err := r.getDB(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		switch {
		case isDuplicateError(err):
			return checkout.ErrDuplicateCheckout
		case isMissingReferenceError(err):
			return apperrors.New(apperrors.ErrCodeNotFound, "图书或用户不存在")
		default:
			return apperrors.Wrap(err, "创建借阅记录失败")
		}
	}
	c.ID = model.ID
	return nil
}

func (r *checkoutRepository) FindByID(ctx context.Context, id uint) (*checkout.ActiveCheckout, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

func (r *checkoutRepository) LockByID(ctx context.Context, id uint) (*checkout.ActiveCheckout, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *checkoutRepository) LockByUserAndBook(ctx context.Context, userID, bookID uint) (*checkout.ActiveCheckout, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND book_id = ?", userID, bookID))
}

func (r *checkoutRepository) first(query *gorm.DB) (*checkout.ActiveCheckout, error) {
	var model ActiveCheckoutModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, checkout.ErrCheckoutNotFound
		}
		return nil, apperrors.Wrap(err, "查询借阅记录失败")
	}
	return toCheckoutEntity(&model), nil
}

func (r *checkoutRepository) ExistsByUserAndBook(ctx context.Context, userID, bookID uint) (bool, error) {
	var n int64
	err := r.getDB(ctx).Model(&ActiveCheckoutModel{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&n).Error
	if err != nil {
		return false, apperrors.Wrap(err, "查询借阅记录失败")
	}
	return n > 0, nil
}

// Update 只写状态和归还时间,借出时间和应还时间创建后不可修改
func (r *checkoutRepository) Update(ctx context.Context, c *checkout.ActiveCheckout) error {
	err := r.getDB(ctx).Model(&ActiveCheckoutModel{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
		"status":      string(c.Status),
		"return_date": c.ReturnDate,
		"updated_at":  c.UpdatedAt,
	}).Error
	if err != nil {
		return apperrors.Wrap(err, "更新借阅记录失败")
	}
	return nil
}

func (r *checkoutRepository) Delete(ctx context.Context, id uint) error {
	result := r.getDB(ctx).Delete(&ActiveCheckoutModel{}, id)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "删除借阅记录失败")
	}
	if result.RowsAffected == 0 {
		return checkout.ErrCheckoutNotFound
	}
	return nil
}

func (r *checkoutRepository) List(ctx context.Context, params checkout.ListParams) ([]*checkout.ActiveCheckout, int64, error) {
	var (
		models []ActiveCheckoutModel
		total  int64
	)
	query := r.getDB(ctx).Model(&ActiveCheckoutModel{})
	if params.UserID != 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.BookID != 0 {
		query = query.Where("book_id = ?", params.BookID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", string(params.Status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅总数失败")
	}
	if err := paged(query.Order("checkout_date DESC").Order("id DESC"), params.Page, params.PageSize).Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅列表失败")
	}

	list := make([]*checkout.ActiveCheckout, len(models))
	for i := range models {
		list[i] = toCheckoutEntity(&models[i])
	}
	return list, total, nil
}

// FindPendingDueBefore 逾期扫描,走(status, due_date)联合索引并加锁
func (r *checkoutRepository) FindPendingDueBefore(ctx context.Context, t time.Time) ([]*checkout.ActiveCheckout, error) {
	var models []ActiveCheckoutModel
	err := r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND due_date < ?", string(checkout.StatusPending), t).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询逾期借阅失败")
	}

	list := make([]*checkout.ActiveCheckout, len(models))
	for i := range models {
		list[i] = toCheckoutEntity(&models[i])
	}
	return list, nil
}

func (r *checkoutRepository) CountByBook(ctx context.Context, bookID uint) (int64, error) {
	return r.count(ctx, "book_id = ?", bookID)
}

func (r *checkoutRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "user_id = ?", userID)
}

func (r *checkoutRepository) count(ctx context.Context, cond string, arg interface{}) (int64, error) {
	var n int64
	if err := r.getDB(ctx).Model(&ActiveCheckoutModel{}).Where(cond, arg).Count(&n).Error; err != nil {
		return 0, apperrors.Wrap(err, "统计借阅记录失败")
	}
	return n, nil
}

// archiveRepository 借阅历史仓储
type archiveRepository struct {
	base
}

// NewArchiveRepository 创建借阅历史仓储
func NewArchiveRepository(db *gorm.DB) checkout.ArchiveRepository {
	return &archiveRepository{base{db}}
}

// CreateIfAbsent INSERT ... ON DUPLICATE KEY UPDATE id=id
// 幂等键已存在时不插入,返回created=false
func (r *archiveRepository) CreateIfAbsent(ctx context.Context, a *checkout.ArchivedCheckout) (bool, error) {
	model := toArchiveModel(a)
	result := r.getDB(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, "归档借阅记录失败")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	a.ID = model.ID
	return true, nil
}

// FindByKey 按幂等键查询,ID升序
func (r *archiveRepository) FindByKey(ctx context.Context, key string) ([]*checkout.ArchivedCheckout, error) {
	var models []ArchivedCheckoutModel
	if err := r.getDB(ctx).Where("idempotency_key = ?", key).Order("id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询借阅历史失败")
	}
	return toArchiveEntities(models), nil
}

func (r *archiveRepository) FindByID(ctx context.Context, id uint) (*checkout.ArchivedCheckout, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

func (r *archiveRepository) FindBySourceCheckoutID(ctx context.Context, checkoutID uint) (*checkout.ArchivedCheckout, error) {
	return r.first(r.getDB(ctx).Where("source_checkout_id = ?", checkoutID).Order("id ASC"))
}

func (r *archiveRepository) first(query *gorm.DB) (*checkout.ArchivedCheckout, error) {
	var model ArchivedCheckoutModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, checkout.ErrArchiveNotFound
		}
		return nil, apperrors.Wrap(err, "查询借阅历史失败")
	}
	return toArchiveEntity(&model), nil
}

func (r *archiveRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.getDB(ctx).Where("id IN ?", ids).Delete(&ArchivedCheckoutModel{}).Error; err != nil {
		return apperrors.Wrap(err, "删除借阅历史失败")
	}
	return nil
}

// List 按归还时间倒序
func (r *archiveRepository) List(ctx context.Context, params checkout.ListParams) ([]*checkout.ArchivedCheckout, int64, error) {
	var (
		models []ArchivedCheckoutModel
		total  int64
	)
	query := r.getDB(ctx).Model(&ArchivedCheckoutModel{})
	if params.UserID != 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.BookID != 0 {
		query = query.Where("book_id = ?", params.BookID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅历史总数失败")
	}
	if err := paged(query.Order("return_date DESC").Order("id DESC"), params.Page, params.PageSize).Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询借阅历史失败")
	}
	return toArchiveEntities(models), total, nil
}

func (r *archiveRepository) CountByBook(ctx context.Context, bookID uint) (int64, error) {
	return r.count(ctx, "book_id = ?", bookID)
}

func (r *archiveRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, "user_id = ?", userID)
}

func (r *archiveRepository) count(ctx context.Context, cond string, arg interface{}) (int64, error) {
	var n int64
	if err := r.getDB(ctx).Model(&ArchivedCheckoutModel{}).Where(cond, arg).Count(&n).Error; err != nil {
		return 0, apperrors.Wrap(err, "统计借阅历史失败")
	}
	return n, nil
}

func toCheckoutModel(c *checkout.ActiveCheckout) *ActiveCheckoutModel {
	return &ActiveCheckoutModel{
		ID:           c.ID,
		UserID:       c.UserID,
		BookID:       c.BookID,
		Status:       string(c.Status),
		CheckoutDate: c.CheckoutDate,
		DueDate:      c.DueDate,
		ReturnDate:   c.ReturnDate,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toCheckoutEntity(m *ActiveCheckoutModel) *checkout.ActiveCheckout {
	return &checkout.ActiveCheckout{
		ID:           m.ID,
		BookID:       m.BookID,
		UserID:       m.UserID,
		CheckoutDate: m.CheckoutDate.UTC(),
		DueDate:      m.DueDate.UTC(),
		ReturnDate:   utcPtr(m.ReturnDate),
		Status:       checkout.Status(m.Status),
		UpdatedAt:    m.UpdatedAt,
	}
}

func toArchiveModel(a *checkout.ArchivedCheckout) *ArchivedCheckoutModel {
	return &ArchivedCheckoutModel{
		SourceCheckoutID: a.SourceCheckoutID,
		BookID:           a.BookID,
		UserID:           a.UserID,
		CheckoutDate:     a.CheckoutDate,
		ReturnDate:       a.ReturnDate,
		IdempotencyKey:   a.IdempotencyKey,
		CreatedAt:        a.CreatedAt,
	}
}

func toArchiveEntity(m *ArchivedCheckoutModel) *checkout.ArchivedCheckout {
	return &checkout.ArchivedCheckout{
		ID:               m.ID,
		SourceCheckoutID: m.SourceCheckoutID,
		BookID:           m.BookID,
		UserID:           m.UserID,
		CheckoutDate:     m.CheckoutDate.UTC(),
		ReturnDate:       m.ReturnDate.UTC(),
		IdempotencyKey:   m.IdempotencyKey,
		CreatedAt:        m.CreatedAt,
	}
}

func toArchiveEntities(models []ArchivedCheckoutModel) []*checkout.ArchivedCheckout {
	list := make([]*checkout.ArchivedCheckout, len(models))
	for i := range models {
		list[i] = toArchiveEntity(&models[i])
	}
	return list
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
