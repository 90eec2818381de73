package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/internal/domain/user"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// ===================== 图书 =====================

type bookRepo struct{ s *Store }

func (r *bookRepo) Create(ctx context.Context, b *book.Book) error {
	return r.s.do(ctx, func(st *state) error {
		if err := uniqueBook(st, b); err != nil {
			return err
		}
		b.ID = st.nextID("books")
		st.books[b.ID] = *b
		return nil
	})
}

func (r *bookRepo) FindByID(ctx context.Context, id uint) (*book.Book, error) {
	var out *book.Book
	err := r.s.do(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return book.ErrBookNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookRepo) FindByISBN(ctx context.Context, isbn string) (*book.Book, error) {
	return r.findBy(ctx, func(b book.Book) bool { return b.ISBN == isbn })
}

func (r *bookRepo) FindByTitle(ctx context.Context, title string) (*book.Book, error) {
	return r.findBy(ctx, func(b book.Book) bool { return strings.EqualFold(b.Title, title) })
}

func (r *bookRepo) findBy(ctx context.Context, match func(book.Book) bool) (*book.Book, error) {
	var out *book.Book
	err := r.s.do(ctx, func(st *state) error {
		for _, b := range st.books {
			if match(b) {
				b := b
				out = &b
				return nil
			}
		}
		return book.ErrBookNotFound
	})
	return out, err
}

func (r *bookRepo) Update(ctx context.Context, b *book.Book) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.books[b.ID]; !ok {
			return book.ErrBookNotFound
		}
		if err := uniqueBook(st, b); err != nil {
			return err
		}
		st.books[b.ID] = *b
		return nil
	})
}

// Delete 有借阅记录引用时拒绝删除;库存记录和流水级联删除
func (r *bookRepo) Delete(ctx context.Context, id uint) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return book.ErrBookNotFound
		}
		for _, c := range st.checkouts {
			if c.BookID == id {
				return book.ErrBookInUse
			}
		}
		for _, a := range st.archives {
			if a.BookID == id {
				return book.ErrBookInUse
			}
		}
		delete(st.books, id)
		delete(st.inventory, id)
		for lid, l := range st.logs {
			if l.BookID == id {
				delete(st.logs, lid)
			}
		}
		return nil
	})
}

func (r *bookRepo) List(ctx context.Context, params book.ListParams) ([]*book.Book, int64, error) {
	var (
		out   []*book.Book
		total int64
	)
	err := r.s.do(ctx, func(st *state) error {
		keyword := strings.ToLower(strings.TrimSpace(params.Keyword))
		var matched []book.Book
		for _, b := range st.books {
			if params.AvailableOnly && !st.inventory[b.ID].Available {
				continue
			}
			if params.Author != "" && !strings.EqualFold(b.Author, params.Author) {
				continue
			}
			if keyword != "" &&
				!strings.Contains(strings.ToLower(b.Title), keyword) &&
				!strings.Contains(strings.ToLower(b.Author), keyword) &&
				!strings.Contains(strings.ToLower(b.ISBN), keyword) {
				continue
			}
			matched = append(matched, b)
		}

		sort.Slice(matched, func(i, j int) bool {
			if params.AvailableOnly {
				ci, cj := st.inventory[matched[i].ID].Copies, st.inventory[matched[j].ID].Copies
				if ci != cj {
					return ci > cj
				}
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		})

		total = int64(len(matched))
		for _, b := range paginate(matched, params.Page, params.PageSize) {
			b := b
			out = append(out, &b)
		}
		return nil
	})
	return out, total, err
}

func uniqueBook(st *state, b *book.Book) error {
	for id, other := range st.books {
		if id == b.ID {
			continue
		}
		if strings.EqualFold(other.Title, b.Title) {
			return book.ErrTitleDuplicate
		}
		if other.ISBN == b.ISBN {
			return book.ErrISBNDuplicate
		}
	}
	return nil
}

// ===================== 用户 =====================

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	return r.s.do(ctx, func(st *state) error {
		for _, other := range st.users {
			if other.Email == u.Email {
				return apperrors.ErrEmailDuplicate
			}
		}
		u.ID = st.nextID("users")
		st.users[u.ID] = *u
		return nil
	})
}

func (r *userRepo) FindByID(ctx context.Context, id uint) (*user.User, error) {
	var out *user.User
	err := r.s.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperrors.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var out *user.User
	err := r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return apperrors.ErrUserNotFound
	})
	return out, err
}

func (r *userRepo) Update(ctx context.Context, u *user.User) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.users[u.ID]; !ok {
			return apperrors.ErrUserNotFound
		}
		st.users[u.ID] = *u
		return nil
	})
}

func (r *userRepo) Delete(ctx context.Context, id uint) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return apperrors.ErrUserNotFound
		}
		for _, c := range st.checkouts {
			if c.UserID == id {
				return apperrors.ErrUserHasLoans
			}
		}
		for _, a := range st.archives {
			if a.UserID == id {
				return apperrors.ErrUserHasLoans
			}
		}
		delete(st.users, id)
		return nil
	})
}

// ===================== 库存 =====================

type inventoryRepo struct{ s *Store }

func (r *inventoryRepo) Create(ctx context.Context, rec *inventory.Record) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.books[rec.BookID]; !ok {
			return book.ErrBookNotFound
		}
		if _, ok := st.inventory[rec.BookID]; ok {
			return apperrors.New(apperrors.ErrCodeBusinessError, "库存记录已存在")
		}
		st.inventory[rec.BookID] = *rec
		return nil
	})
}

func (r *inventoryRepo) FindByBookID(ctx context.Context, bookID uint) (*inventory.Record, error) {
	var out *inventory.Record
	err := r.s.do(ctx, func(st *state) error {
		rec, ok := st.inventory[bookID]
		if !ok {
			return inventory.ErrRecordNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

// LockByBookID 内存实现中事务本身已串行化,等价于FindByBookID
func (r *inventoryRepo) LockByBookID(ctx context.Context, bookID uint) (*inventory.Record, error) {
	return r.FindByBookID(ctx, bookID)
}

func (r *inventoryRepo) FindByBookIDs(ctx context.Context, bookIDs []uint) (map[uint]*inventory.Record, error) {
	out := make(map[uint]*inventory.Record, len(bookIDs))
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range bookIDs {
			if rec, ok := st.inventory[id]; ok {
				rec := rec
				out[id] = &rec
			}
		}
		return nil
	})
	return out, err
}

func (r *inventoryRepo) Update(ctx context.Context, rec *inventory.Record) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.inventory[rec.BookID]; !ok {
			return inventory.ErrRecordNotFound
		}
		if rec.Copies < 0 {
			return inventory.ErrInvalidCopies
		}
		st.inventory[rec.BookID] = *rec
		return nil
	})
}

func (r *inventoryRepo) DeleteByBookID(ctx context.Context, bookID uint) error {
	return r.s.do(ctx, func(st *state) error {
		delete(st.inventory, bookID)
		return nil
	})
}

func (r *inventoryRepo) List(ctx context.Context, page, pageSize int) ([]*inventory.Record, int64, error) {
	var (
		out   []*inventory.Record
		total int64
	)
	err := r.s.do(ctx, func(st *state) error {
		all := make([]inventory.Record, 0, len(st.inventory))
		for _, rec := range st.inventory {
			all = append(all, rec)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].BookID < all[j].BookID })
		total = int64(len(all))
		for _, rec := range paginate(all, page, pageSize) {
			rec := rec
			out = append(out, &rec)
		}
		return nil
	})
	return out, total, err
}

type logRepo struct{ s *Store }

func (r *logRepo) Create(ctx context.Context, l *inventory.Log) error {
	return r.s.do(ctx, func(st *state) error {
		l.ID = st.nextID("inventory_logs")
		st.logs[l.ID] = *l
		return nil
	})
}

func (r *logRepo) ListByBookID(ctx context.Context, bookID uint, page, pageSize int) ([]*inventory.Log, int64, error) {
	var (
		out   []*inventory.Log
		total int64
	)
	err := r.s.do(ctx, func(st *state) error {
		var matched []inventory.Log
		for _, l := range st.logs {
			if l.BookID == bookID {
				matched = append(matched, l)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
		total = int64(len(matched))
		for _, l := range paginate(matched, page, pageSize) {
			l := l
			out = append(out, &l)
		}
		return nil
	})
	return out, total, err
}

func (r *logRepo) DeleteByBookID(ctx context.Context, bookID uint) error {
	return r.s.do(ctx, func(st *state) error {
		for id, l := range st.logs {
			if l.BookID == bookID {
				delete(st.logs, id)
			}
		}
		return nil
	})
}

// ===================== 在借记录 =====================

type checkoutRepo struct{ s *Store }

func (r *checkoutRepo) Create(ctx context.Context, c *checkout.ActiveCheckout) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.books[c.BookID]; !ok {
			return book.ErrBookNotFound
		}
		if _, ok := st.users[c.UserID]; !ok {
			return apperrors.ErrUserNotFound
		}
		for _, other := range st.checkouts {
			if other.UserID == c.UserID && other.BookID == c.BookID {
				return checkout.ErrDuplicateCheckout
			}
		}
		c.ID = st.nextID("active_checkouts")
		st.checkouts[c.ID] = *c
		return nil
	})
}

func (r *checkoutRepo) FindByID(ctx context.Context, id uint) (*checkout.ActiveCheckout, error) {
	var out *checkout.ActiveCheckout
	err := r.s.do(ctx, func(st *state) error {
		c, ok := st.checkouts[id]
		if !ok {
			return checkout.ErrCheckoutNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *checkoutRepo) LockByID(ctx context.Context, id uint) (*checkout.ActiveCheckout, error) {
	return r.FindByID(ctx, id)
}

func (r *checkoutRepo) LockByUserAndBook(ctx context.Context, userID, bookID uint) (*checkout.ActiveCheckout, error) {
	var out *checkout.ActiveCheckout
	err := r.s.do(ctx, func(st *state) error {
		for _, c := range st.checkouts {
			if c.UserID == userID && c.BookID == bookID {
				c := c
				out = &c
				return nil
			}
		}
		return checkout.ErrCheckoutNotFound
	})
	return out, err
}

func (r *checkoutRepo) ExistsByUserAndBook(ctx context.Context, userID, bookID uint) (bool, error) {
	_, err := r.LockByUserAndBook(ctx, userID, bookID)
	if errors.Is(err, checkout.ErrCheckoutNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *checkoutRepo) Update(ctx context.Context, c *checkout.ActiveCheckout) error {
	return r.s.do(ctx, func(st *state) error {
		old, ok := st.checkouts[c.ID]
		if !ok {
			return checkout.ErrCheckoutNotFound
		}
		// 借出时间和应还时间不可修改
		c.CheckoutDate = old.CheckoutDate
		c.DueDate = old.DueDate
		st.checkouts[c.ID] = *c
		return nil
	})
}

func (r *checkoutRepo) Delete(ctx context.Context, id uint) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.checkouts[id]; !ok {
			return checkout.ErrCheckoutNotFound
		}
		delete(st.checkouts, id)
		return nil
	})
}

func (r *checkoutRepo) List(ctx context.Context, params checkout.ListParams) ([]*checkout.ActiveCheckout, int64, error) {
	var (
		out   []*checkout.ActiveCheckout
		total int64
	)
	err := r.s.do(ctx, func(st *state) error {
		var matched []checkout.ActiveCheckout
		for _, c := range st.checkouts {
			if params.UserID != 0 && c.UserID != params.UserID {
				continue
			}
			if params.BookID != 0 && c.BookID != params.BookID {
				continue
			}
			if params.Status != "" && c.Status != params.Status {
				continue
			}
			matched = append(matched, c)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CheckoutDate.Equal(matched[j].CheckoutDate) {
				return matched[i].CheckoutDate.After(matched[j].CheckoutDate)
			}
			return matched[i].ID > matched[j].ID
		})
		total = int64(len(matched))
		for _, c := range paginate(matched, params.Page, params.PageSize) {
			c := c
			out = append(out, &c)
		}
		return nil
	})
	return out, total, err
}

func (r *checkoutRepo) FindPendingDueBefore(ctx context.Context, t time.Time) ([]*checkout.ActiveCheckout, error) {
	var out []*checkout.ActiveCheckout
	err := r.s.do(ctx, func(st *state) error {
		for _, c := range st.checkouts {
			if c.Status == checkout.StatusPending && c.DueDate.Before(t) {
				c := c
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *checkoutRepo) CountByBook(ctx context.Context, bookID uint) (int64, error) {
	return r.count(ctx, func(c checkout.ActiveCheckout) bool { return c.BookID == bookID })
}

func (r *checkoutRepo) CountByUser(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, func(c checkout.ActiveCheckout) bool { return c.UserID == userID })
}

func (r *checkoutRepo) count(ctx context.Context, match func(checkout.ActiveCheckout) bool) (int64, error) {
	var n int64
	err := r.s.do(ctx, func(st *state) error {
		for _, c := range st.checkouts {
			if match(c) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ===================== 借阅历史 =====================

type archiveRepo struct{ s *Store }

func (r *archiveRepo) CreateIfAbsent(ctx context.Context, a *checkout.ArchivedCheckout) (bool, error) {
	created := false
	err := r.s.do(ctx, func(st *state) error {
		for _, other := range st.archives {
			if other.IdempotencyKey == a.IdempotencyKey {
				return nil
			}
		}
		a.ID = st.nextID("archived_checkouts")
		st.archives[a.ID] = *a
		created = true
		return nil
	})
	return created, err
}

func (r *archiveRepo) FindByKey(ctx context.Context, key string) ([]*checkout.ArchivedCheckout, error) {
	var out []*checkout.ArchivedCheckout
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.archives {
			if a.IdempotencyKey == key {
				a := a
				out = append(out, &a)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *archiveRepo) FindByID(ctx context.Context, id uint) (*checkout.ArchivedCheckout, error) {
	var out *checkout.ArchivedCheckout
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.archives[id]
		if !ok {
			return checkout.ErrArchiveNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *archiveRepo) FindBySourceCheckoutID(ctx context.Context, checkoutID uint) (*checkout.ArchivedCheckout, error) {
	var out *checkout.ArchivedCheckout
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.archives {
			if a.SourceCheckoutID == checkoutID && (out == nil || a.ID < out.ID) {
				a := a
				out = &a
			}
		}
		if out == nil {
			return checkout.ErrArchiveNotFound
		}
		return nil
	})
	return out, err
}

func (r *archiveRepo) DeleteByIDs(ctx context.Context, ids []uint) error {
	return r.s.do(ctx, func(st *state) error {
		for _, id := range ids {
			delete(st.archives, id)
		}
		return nil
	})
}

func (r *archiveRepo) List(ctx context.Context, params checkout.ListParams) ([]*checkout.ArchivedCheckout, int64, error) {
	var (
		out   []*checkout.ArchivedCheckout
		total int64
	)
	err := r.s.do(ctx, func(st *state) error {
		var matched []checkout.ArchivedCheckout
		for _, a := range st.archives {
			if params.UserID != 0 && a.UserID != params.UserID {
				continue
			}
			if params.BookID != 0 && a.BookID != params.BookID {
				continue
			}
			matched = append(matched, a)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].ReturnDate.Equal(matched[j].ReturnDate) {
				return matched[i].ReturnDate.After(matched[j].ReturnDate)
			}
			return matched[i].ID > matched[j].ID
		})
		total = int64(len(matched))
		for _, a := range paginate(matched, params.Page, params.PageSize) {
			a := a
			out = append(out, &a)
		}
		return nil
	})
	return out, total, err
}

func (r *archiveRepo) CountByBook(ctx context.Context, bookID uint) (int64, error) {
	return r.count(ctx, func(a checkout.ArchivedCheckout) bool { return a.BookID == bookID })
}

func (r *archiveRepo) CountByUser(ctx context.Context, userID uint) (int64, error) {
	return r.count(ctx, func(a checkout.ArchivedCheckout) bool { return a.UserID == userID })
}

func (r *archiveRepo) count(ctx context.Context, match func(checkout.ArchivedCheckout) bool) (int64, error) {
	var n int64
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.archives {
			if match(a) {
				n++
			}
		}
		return nil
	})
	return n, err
}
