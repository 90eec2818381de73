package checkout

import (
	"fmt"
	"time"
)

// ArchivedCheckout 借阅历史(只追加)
// IdempotencyKey由(BookID, UserID, CheckoutDate, ReturnDate)派生,唯一索引保证同一笔借阅只归档一次
type ArchivedCheckout struct {
	ID               uint
	SourceCheckoutID uint
	BookID           uint
	UserID           uint
	CheckoutDate     time.Time
	ReturnDate       time.Time
	IdempotencyKey   string
	CreatedAt        time.Time
}

// NewArchive 从已归还的在借记录生成历史快照
func NewArchive(c *ActiveCheckout, now time.Time) (*ArchivedCheckout, error) {
	if err := c.CanComplete(); err != nil {
		return nil, err
	}
	return &ArchivedCheckout{
		SourceCheckoutID: c.ID,
		BookID:           c.BookID,
		UserID:           c.UserID,
		CheckoutDate:     c.CheckoutDate,
		ReturnDate:       *c.ReturnDate,
		IdempotencyKey:   ArchiveKey(c.BookID, c.UserID, c.CheckoutDate, *c.ReturnDate),
		CreatedAt:        now,
	}, nil
}

// ArchiveKey 幂等键,时间精确到秒(与数据库DATETIME精度一致)
func ArchiveKey(bookID, userID uint, checkoutDate, returnDate time.Time) string {
	return fmt.Sprintf("%d:%d:%d:%d", bookID, userID, checkoutDate.Unix(), returnDate.Unix())
}

// Earliest 从同一幂等键的多条记录中选出保留的一条(ID最小),其余返回待删除
func Earliest(archives []*ArchivedCheckout) (keep *ArchivedCheckout, extras []uint) {
	for _, a := range archives {
		if keep == nil || a.ID < keep.ID {
			keep = a
		}
	}
	for _, a := range archives {
		if a != keep {
			extras = append(extras, a.ID)
		}
	}
	return keep, extras
}
