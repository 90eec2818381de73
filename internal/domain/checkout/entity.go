package checkout

import "time"

// GracePeriodDays 借期(天),应还日期 = 借出日期 + 15天
const GracePeriodDays = 15

// ActiveCheckout 在借记录
// 设计说明:
// 1. 同一(UserID, BookID)同时最多一条,数据库唯一索引兜底
// 2. CheckoutDate和DueDate创建时确定,之后不再修改
// 3. 状态机: pending -> {overdue, missing, returned}, overdue/missing之间可互转,
//    returned为终态,随后由完结流程归档并删除
type ActiveCheckout struct {
	ID           uint
	BookID       uint
	UserID       uint
	CheckoutDate time.Time
	DueDate      time.Time
	ReturnDate   *time.Time
	Status       Status
	UpdatedAt    time.Time
}

// New 创建在借记录(调用方需先确认库存可借、用户没有同书在借)
func New(bookID, userID uint, now time.Time) *ActiveCheckout {
	return &ActiveCheckout{
		BookID:       bookID,
		UserID:       userID,
		CheckoutDate: now,
		DueDate:      DueDateFor(now),
		Status:       StatusPending,
		UpdatedAt:    now,
	}
}

// DueDateFor 根据借出时间计算应还时间
func DueDateFor(checkoutDate time.Time) time.Time {
	return checkoutDate.AddDate(0, 0, GracePeriodDays)
}

// Return 归还
func (c *ActiveCheckout) Return(now time.Time) error {
	if c.Status == StatusReturned {
		return ErrAlreadyReturned
	}
	c.markReturned(now)
	return nil
}

// SetStatus 显式状态变更
// 先校验目标值,非法值不会修改任何字段
func (c *ActiveCheckout) SetStatus(raw string, now time.Time) error {
	target, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	if c.Status.IsTerminal() {
		return ErrAlreadyReturned
	}

	if target == StatusReturned {
		c.markReturned(now)
		return nil
	}
	c.Status = target
	c.UpdatedAt = now
	return nil
}

// CanComplete 只有已归还的记录才能完结
func (c *ActiveCheckout) CanComplete() error {
	if c.Status != StatusReturned || c.ReturnDate == nil {
		return ErrNotYetReturned
	}
	return nil
}

// IsOverdue 仍为pending且已超过应还时间
func (c *ActiveCheckout) IsOverdue(now time.Time) bool {
	return c.Status == StatusPending && now.After(c.DueDate)
}

// IsOwnedBy 是否为借阅人本人
func (c *ActiveCheckout) IsOwnedBy(userID uint) bool {
	return c.UserID == userID
}

func (c *ActiveCheckout) markReturned(now time.Time) {
	c.Status = StatusReturned
	returned := now
	c.ReturnDate = &returned
	c.UpdatedAt = now
}
