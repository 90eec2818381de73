package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/library/internal/domain/book"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// bookRepository 图书仓储实现(MySQL)
// 负责领域实体与GORM模型之间的转换,把唯一索引/外键错误转换为业务错误
type bookRepository struct {
	base
}

// NewBookRepository 创建图书仓储
func NewBookRepository(db *gorm.DB) book.Repository {
	return &bookRepository{base{db}}
}

// Create 创建图书
func (r *bookRepository) Create(ctx context.Context, b *book.Book) error {
	model := toBookModel(b)
	if err := r.getDB(ctx).Omit(clause.Associations).Create(model).Error; err != nil {
		return bookWriteError(err, "创建图书失败")
	}

	b.ID = model.ID
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID 根据ID查找图书
func (r *bookRepository) FindByID(ctx context.Context, id uint) (*book.Book, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

// FindByISBN 根据ISBN查找图书
func (r *bookRepository) FindByISBN(ctx context.Context, isbn string) (*book.Book, error) {
	return r.first(r.getDB(ctx).Where("isbn = ?", isbn))
}

// FindByTitle 根据书名查找(列排序规则不区分大小写)
func (r *bookRepository) FindByTitle(ctx context.Context, title string) (*book.Book, error) {
	return r.first(r.getDB(ctx).Where("title = ?", title))
}

func (r *bookRepository) first(query *gorm.DB) (*book.Book, error) {
	var model BookModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, book.ErrBookNotFound
		}
		return nil, apperrors.Wrap(err, "查询图书失败")
	}
	return toBookEntity(&model), nil
}

// Update 更新图书信息
func (r *bookRepository) Update(ctx context.Context, b *book.Book) error {
	result := r.getDB(ctx).Model(&BookModel{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"title":          b.Title,
		"author":         b.Author,
		"isbn":           b.ISBN,
		"published_date": b.PublishedDate,
		"updated_at":     b.UpdatedAt,
	})
	if result.Error != nil {
		return bookWriteError(result.Error, "更新图书失败")
	}
	return nil
}

// Delete 物理删除图书
// 库存记录和流水由外键级联删除;仍被借阅记录引用时外键RESTRICT拒绝
func (r *bookRepository) Delete(ctx context.Context, id uint) error {
	result := r.getDB(ctx).Delete(&BookModel{}, id)
	if result.Error != nil {
		if isReferencedError(result.Error) {
			return book.ErrBookInUse
		}
		return apperrors.Wrap(result.Error, "删除图书失败")
	}
	if result.RowsAffected == 0 {
		return book.ErrBookNotFound
	}
	return nil
}

// List 分页查询图书列表
// AvailableOnly时关联库存表,只返回有在架副本的图书并按副本数倒序
func (r *bookRepository) List(ctx context.Context, params book.ListParams) ([]*book.Book, int64, error) {
	var (
		models []BookModel
		total  int64
	)

	query := r.getDB(ctx).Model(&BookModel{})
	if params.AvailableOnly {
		query = query.Joins("JOIN inventory_records ir ON ir.book_id = books.id").
			Where("ir.copies >= 1")
	}
	if params.Keyword != "" {
		keyword := "%" + params.Keyword + "%"
		query = query.Where("books.title LIKE ? OR books.author LIKE ? OR books.isbn LIKE ?", keyword, keyword, keyword)
	}
	if params.Author != "" {
		query = query.Where("books.author = ?", params.Author)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询图书总数失败")
	}

	if params.AvailableOnly {
		query = query.Order("ir.copies DESC").Order("books.id ASC")
	} else {
		query = query.Order("books.id DESC")
	}
	if params.PageSize > 0 {
		page := params.Page
		if page < 1 {
			page = 1
		}
		query = query.Limit(params.PageSize).Offset((page - 1) * params.PageSize)
	}

	if err := query.Select("books.*").Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询图书列表失败")
	}

	books := make([]*book.Book, len(models))
	for i := range models {
		books[i] = toBookEntity(&models[i])
	}
	return books, total, nil
}

// bookWriteError 唯一索引冲突按索引名区分书名/ISBN重复
func bookWriteError(err error, msg string) error {
	switch {
	case isDuplicateOn(err, "uk_books_title"):
		return book.ErrTitleDuplicate
	case isDuplicateOn(err, "uk_books_isbn"):
		return book.ErrISBNDuplicate
	case isDuplicateError(err):
		return book.ErrISBNDuplicate
	default:
		return apperrors.Wrap(err, msg)
	}
}

func toBookModel(b *book.Book) *BookModel {
	return &BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		ISBN:          b.ISBN,
		PublishedDate: b.PublishedDate,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// toBookEntity GORM模型 → 领域实体
func toBookEntity(model *BookModel) *book.Book {
	return &book.Book{
		ID:            model.ID,
		Title:         model.Title,
		Author:        model.Author,
		ISBN:          model.ISBN,
		PublishedDate: model.PublishedDate,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}
