package mysql

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/internal/domain/user"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

// 需要真实MySQL: LIBRARY_TEST_MYSQL_DSN="root:root@tcp(127.0.0.1:3306)/library_test?charset=utf8mb4&parseTime=true&loc=UTC"
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("LIBRARY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("LIBRARY_TEST_MYSQL_DSN未设置,跳过MySQL集成测试")
	}

	db, err := Open(dsn, "silent")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"archived_checkouts", "active_checkouts", "inventory_logs", "inventory_records", "books", "users"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}
	return db
}

type fixture struct {
	tx        *TxManager
	users     user.Repository
	books     book.Repository
	inventory inventory.Repository
	checkouts checkout.Repository
	archives  checkout.ArchiveRepository
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	return &fixture{
		tx:        NewTxManager(db),
		users:     NewUserRepository(db),
		books:     NewBookRepository(db),
		inventory: NewInventoryRepository(db),
		checkouts: NewCheckoutRepository(db),
		archives:  NewArchiveRepository(db),
	}
}

func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func (f *fixture) seed(t *testing.T, copies int) (*user.User, *book.Book) {
	t.Helper()
	ctx := context.Background()

	u := user.NewUser("reader@example.com", "hash", "reader", "", user.RoleMember)
	require.NoError(t, f.users.Create(ctx, u))

	b, err := book.NewBook("Dune", "Frank Herbert", "0441172717", nil, now())
	require.NoError(t, err)
	require.NoError(t, f.books.Create(ctx, b))

	rec, err := inventory.NewRecord(b.ID, copies, now())
	require.NoError(t, err)
	require.NoError(t, f.inventory.Create(ctx, rec))
	return u, b
}

func TestBookRepository_Unique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, b := f.seed(t, 1)

	dupTitle, err := book.NewBook("dune", "Someone", "0306406152", nil, now())
	require.NoError(t, err)
	assert.True(t, errors.Is(f.books.Create(ctx, dupTitle), book.ErrTitleDuplicate))

	dupISBN, err := book.NewBook("Other", "Someone", b.ISBN, nil, now())
	require.NoError(t, err)
	assert.True(t, errors.Is(f.books.Create(ctx, dupISBN), book.ErrISBNDuplicate))

	got, err := f.books.FindByTitle(ctx, "DUNE")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestCheckoutRepository_UniquePairAndRestrict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, b := f.seed(t, 2)

	c := checkout.New(b.ID, u.ID, now())
	require.NoError(t, f.checkouts.Create(ctx, c))
	assert.True(t, errors.Is(f.checkouts.Create(ctx, checkout.New(b.ID, u.ID, now())), checkout.ErrDuplicateCheckout))

	assert.True(t, errors.Is(f.books.Delete(ctx, b.ID), book.ErrBookInUse))
	assert.True(t, errors.Is(f.users.Delete(ctx, u.ID), apperrors.ErrUserHasLoans))

	require.NoError(t, c.Return(now()))
	require.NoError(t, f.checkouts.Update(ctx, c))

	got, err := f.checkouts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusReturned, got.Status)
	assert.True(t, c.CheckoutDate.Equal(got.CheckoutDate))
	assert.True(t, c.DueDate.Equal(got.DueDate))
}

func TestArchiveRepository_CreateIfAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, b := f.seed(t, 1)

	c := checkout.New(b.ID, u.ID, now())
	require.NoError(t, f.checkouts.Create(ctx, c))
	require.NoError(t, c.Return(now()))

	first, err := checkout.NewArchive(c, now())
	require.NoError(t, err)
	created, err := f.archives.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second, err := checkout.NewArchive(c, now())
	require.NoError(t, err)
	created, err = f.archives.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	rows, err := f.archives.FindByKey(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)

	bySource, err := f.archives.FindBySourceCheckoutID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, bySource.ID)
}

func TestTxManager_Rollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, b := f.seed(t, 1)

	boom := errors.New("boom")
	err := f.tx.Transaction(ctx, func(ctx context.Context) error {
		rec, err := f.inventory.LockByBookID(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := rec.Decrement(now()); err != nil {
			return err
		}
		if err := f.inventory.Update(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	rec, err := f.inventory.FindByBookID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Copies)
	assert.True(t, rec.Available)
}

func TestBookRepository_ListAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, dune := f.seed(t, 1)

	more, err := book.NewBook("Emma", "Jane Austen", "0306406152", nil, now())
	require.NoError(t, err)
	require.NoError(t, f.books.Create(ctx, more))
	rec, err := inventory.NewRecord(more.ID, 4, now())
	require.NoError(t, err)
	require.NoError(t, f.inventory.Create(ctx, rec))

	none, err := book.NewBook("Zero", "Nobody", "080442957X", nil, now())
	require.NoError(t, err)
	require.NoError(t, f.books.Create(ctx, none))
	rec, err = inventory.NewRecord(none.ID, 0, now())
	require.NoError(t, err)
	require.NoError(t, f.inventory.Create(ctx, rec))

	list, total, err := f.books.List(ctx, book.ListParams{Page: 1, PageSize: 10, AvailableOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, more.ID, list[0].ID)
	assert.Equal(t, dune.ID, list[1].ID)
}
