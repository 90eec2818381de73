package inventory

import "time"

// ChangeType 库存变更类型
type ChangeType string

const (
	ChangeTypeCheckout ChangeType = "checkout" // 借出
	ChangeTypeReturn   ChangeType = "return"   // 归还入库
	ChangeTypeRestock  ChangeType = "restock"  // 新书上架
	ChangeTypeAdjust   ChangeType = "adjust"   // 管理员调整
)

// Log 库存变更流水(只追加,不修改)
// 与库存变更在同一事务中写入,用于对账
type Log struct {
	ID          uint
	BookID      uint
	ChangeType  ChangeType
	Delta       int // 正数增加,负数减少
	CopiesAfter int
	CheckoutID  *uint // 借阅引起的变更才有
	CreatedAt   time.Time
}

// NewLog 根据变更前后的副本数生成流水
func NewLog(r *Record, changeType ChangeType, before int, checkoutID *uint, now time.Time) *Log {
	return &Log{
		BookID:      r.BookID,
		ChangeType:  changeType,
		Delta:       r.Copies - before,
		CopiesAfter: r.Copies,
		CheckoutID:  checkoutID,
		CreatedAt:   now,
	}
}
