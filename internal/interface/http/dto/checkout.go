package dto

import "github.com/xiebiao/library/internal/domain/checkout"

// CreateCheckoutRequest 借书
// user_id只有馆员可以指定(代读者办理),普通用户固定为本人
type CreateCheckoutRequest struct {
	BookID uint `json:"book_id" binding:"required,min=1" example:"1"`
	UserID uint `json:"user_id" binding:"omitempty,min=1" example:"2"`
}

// SetStatusRequest 修改借阅状态,大小写不敏感
type SetStatusRequest struct {
	Status string `json:"status" binding:"required" example:"overdue"` // pending | overdue | missing | returned
}

// ListCheckoutsRequest 在借/历史列表查询
type ListCheckoutsRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	BookID   uint   `form:"book_id"`
	UserID   uint   `form:"user_id"` // 仅馆员有效
	Status   string `form:"status" binding:"omitempty"`
}

// CheckoutResponse 在借记录
type CheckoutResponse struct {
	ID           uint   `json:"id" example:"1"`
	BookID       uint   `json:"book_id" example:"1"`
	UserID       uint   `json:"user_id" example:"2"`
	CheckoutDate string `json:"checkout_date" example:"2024-01-15 10:30:00"`
	DueDate      string `json:"due_date" example:"2024-01-30 10:30:00"`
	ReturnDate   string `json:"return_date,omitempty"`
	Status       string `json:"status" example:"pending"`
}

// HistoryResponse 借阅历史
type HistoryResponse struct {
	ID               uint   `json:"id" example:"1"`
	SourceCheckoutID uint   `json:"source_checkout_id" example:"1"`
	BookID           uint   `json:"book_id" example:"1"`
	UserID           uint   `json:"user_id" example:"2"`
	CheckoutDate     string `json:"checkout_date"`
	ReturnDate       string `json:"return_date"`
}

// OverdueResponse 逾期扫描结果
type OverdueResponse struct {
	Marked int `json:"marked" example:"3"`
}

func ToCheckoutResponse(c *checkout.ActiveCheckout) *CheckoutResponse {
	resp := &CheckoutResponse{
		ID:           c.ID,
		BookID:       c.BookID,
		UserID:       c.UserID,
		CheckoutDate: c.CheckoutDate.UTC().Format(TimeLayout),
		DueDate:      c.DueDate.UTC().Format(TimeLayout),
		Status:       c.Status.String(),
	}
	if c.ReturnDate != nil {
		resp.ReturnDate = c.ReturnDate.UTC().Format(TimeLayout)
	}
	return resp
}

func ToHistoryResponse(a *checkout.ArchivedCheckout) *HistoryResponse {
	return &HistoryResponse{
		ID:               a.ID,
		SourceCheckoutID: a.SourceCheckoutID,
		BookID:           a.BookID,
		UserID:           a.UserID,
		CheckoutDate:     a.CheckoutDate.UTC().Format(TimeLayout),
		ReturnDate:       a.ReturnDate.UTC().Format(TimeLayout),
	}
}
