package dto

import (
	"time"

	"github.com/xiebiao/library/internal/application/catalog"
	"github.com/xiebiao/library/internal/domain/inventory"
)

const (
	// TimeLayout 接口统一的时间格式(UTC)
	TimeLayout = "2006-01-02 15:04:05"
	// DateLayout 出版日期格式
	DateLayout = "2006-01-02"
)

// CreateBookRequest 上架请求
// ISBN校验(ISBN-10/13校验位)、书名唯一在领域层完成
type CreateBookRequest struct {
	Title         string `json:"title" binding:"required,max=200" example:"The Go Programming Language"`
	Author        string `json:"author" binding:"required,max=75" example:"Alan Donovan"`
	ISBN          string `json:"isbn" binding:"required,max=17" example:"978-0-13-468599-1"`
	PublishedDate string `json:"published_date" binding:"omitempty,datetime=2006-01-02" example:"2015-10-26"`
	Copies        int    `json:"copies" binding:"min=0" example:"3"`
}

// UpdateBookRequest 修改请求,未传字段不修改
// published_date传空字符串表示清空
type UpdateBookRequest struct {
	Title         string  `json:"title" binding:"omitempty,max=200"`
	Author        string  `json:"author" binding:"omitempty,max=75"`
	ISBN          string  `json:"isbn" binding:"omitempty,max=17"`
	PublishedDate *string `json:"published_date" binding:"omitempty"`
	Copies        *int    `json:"copies" binding:"omitempty,min=0"`
}

// ListBooksRequest 图书列表查询
// 默认只返回有在架副本的图书(按副本数倒序),all=true返回全部
type ListBooksRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
	Search   string `form:"search" binding:"omitempty,max=100" example:"dune"`
	Author   string `form:"author" binding:"omitempty,max=75" example:"Frank Herbert"`
	All      bool   `form:"all"`
}

// InventoryResponse 库存
type InventoryResponse struct {
	BookID    uint   `json:"book_id" example:"1"`
	Copies    int    `json:"copies" example:"3"`
	Available bool   `json:"available" example:"true"`
	DateAdded string `json:"date_added" example:"2024-01-15 10:30:00"`
	UpdatedAt string `json:"updated_at" example:"2024-01-15 10:30:00"`
}

// InventoryLogResponse 库存流水
type InventoryLogResponse struct {
	ID          uint   `json:"id"`
	ChangeType  string `json:"change_type" example:"checkout"`
	Delta       int    `json:"delta" example:"-1"`
	CopiesAfter int    `json:"copies_after" example:"2"`
	CheckoutID  *uint  `json:"checkout_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// BookResponse 图书详情(含库存)
type BookResponse struct {
	ID            uint               `json:"id" example:"1"`
	Title         string             `json:"title" example:"Dune"`
	Author        string             `json:"author" example:"Frank Herbert"`
	ISBN          string             `json:"isbn" example:"0441172717"`
	PublishedDate string             `json:"published_date,omitempty" example:"1965-08-01"`
	Inventory     *InventoryResponse `json:"inventory,omitempty"`
	CreatedAt     string             `json:"created_at"`
	UpdatedAt     string             `json:"updated_at"`
}

// ParseDate 解析出版日期,空字符串返回nil
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ToBookResponse 应用层BookDetail → HTTP响应
func ToBookResponse(d *catalog.BookDetail) *BookResponse {
	b := d.Book
	resp := &BookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		ISBN:      b.ISBN,
		Inventory: ToInventoryResponse(d.Inventory),
		CreatedAt: b.CreatedAt.UTC().Format(TimeLayout),
		UpdatedAt: b.UpdatedAt.UTC().Format(TimeLayout),
	}
	if b.PublishedDate != nil {
		resp.PublishedDate = b.PublishedDate.Format(DateLayout)
	}
	return resp
}

// ToInventoryResponse nil安全
func ToInventoryResponse(r *inventory.Record) *InventoryResponse {
	if r == nil {
		return nil
	}
	return &InventoryResponse{
		BookID:    r.BookID,
		Copies:    r.Copies,
		Available: r.Available,
		DateAdded: r.DateAdded.UTC().Format(TimeLayout),
		UpdatedAt: r.UpdatedAt.UTC().Format(TimeLayout),
	}
}

func ToInventoryLogResponse(l *inventory.Log) *InventoryLogResponse {
	return &InventoryLogResponse{
		ID:          l.ID,
		ChangeType:  string(l.ChangeType),
		Delta:       l.Delta,
		CopiesAfter: l.CopiesAfter,
		CheckoutID:  l.CheckoutID,
		CreatedAt:   l.CreatedAt.UTC().Format(TimeLayout),
	}
}
