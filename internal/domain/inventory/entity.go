package inventory

import "time"

// Record 馆藏记录,与Book一对一(BookID即主键)
// 不变量: Available == (Copies >= 1),每次变更后都成立
// Version每次变更加1,缓存据此拒绝旧数据覆盖新数据
type Record struct {
	BookID    uint
	Copies    int
	Available bool
	Version   int64
	DateAdded time.Time
	UpdatedAt time.Time
}

// NewRecord 新书上架时创建,初始副本数默认0
func NewRecord(bookID uint, copies int, now time.Time) (*Record, error) {
	if copies < 0 {
		return nil, ErrInvalidCopies
	}
	r := &Record{
		BookID:    bookID,
		Copies:    copies,
		Version:   1,
		DateAdded: now,
		UpdatedAt: now,
	}
	r.recompute()
	return r, nil
}

// Increment 归还入库,副本数+1
func (r *Record) Increment(now time.Time) {
	r.Copies++
	r.touch(now)
}

// Decrement 借出,副本数-1;已为0时返回ErrOutOfStock且不修改
func (r *Record) Decrement(now time.Time) error {
	if r.Copies <= 0 {
		return ErrOutOfStock
	}
	r.Copies--
	r.touch(now)
	return nil
}

// SetCopies 管理员直接调整副本数(盘点、补货)
func (r *Record) SetCopies(copies int, now time.Time) error {
	if copies < 0 {
		return ErrInvalidCopies
	}
	r.Copies = copies
	r.touch(now)
	return nil
}

// Consistent 检查可借标志与副本数是否一致
func (r *Record) Consistent() bool {
	return r.Available == (r.Copies >= 1)
}

func (r *Record) recompute() {
	r.Available = r.Copies >= 1
}

func (r *Record) touch(now time.Time) {
	r.Version++
	r.UpdatedAt = now
	r.recompute()
}
