package lending_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/library/internal/application/lending"
	"github.com/xiebiao/library/internal/application/ports"
	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/internal/domain/user"
	"github.com/xiebiao/library/internal/infrastructure/persistence/memory"
	apperrors "github.com/xiebiao/library/pkg/errors"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t     *testing.T
	store *memory.Store
	repos lending.Repositories
	clock *clock
	svc   *lending.Service
}

func newFixture(t *testing.T, opts ...lending.Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		t:     t,
		store: store,
		clock: newClock(),
		repos: lending.Repositories{
			Books:         store.Books(),
			Users:         store.Users(),
			Inventory:     store.Inventory(),
			InventoryLogs: store.InventoryLogs(),
			Checkouts:     store.Checkouts(),
			Archives:      store.Archives(),
		},
	}
	f.svc = f.service(opts...)
	return f
}

func (f *fixture) service(opts ...lending.Option) *lending.Service {
	opts = append([]lending.Option{lending.WithClock(f.clock.Now)}, opts...)
	return lending.NewService(f.store, f.repos, opts...)
}

func (f *fixture) addUser(email string) uint {
	f.t.Helper()
	u := user.NewUser(email, "hash", "读者", "", user.RoleMember)
	require.NoError(f.t, f.repos.Users.Create(context.Background(), u))
	return u.ID
}

var isbns = []string{"0306406152", "080442957X", "9780306406157", "0131103628", "9780134685991"}

func (f *fixture) addBook(n, copies int) uint {
	f.t.Helper()
	ctx := context.Background()
	b, err := book.NewBook(fmt.Sprintf("book %d", n), "author", isbns[n], nil, f.clock.Now())
	require.NoError(f.t, err)
	require.NoError(f.t, f.repos.Books.Create(ctx, b))
	rec, err := inventory.NewRecord(b.ID, copies, f.clock.Now())
	require.NoError(f.t, err)
	require.NoError(f.t, f.repos.Inventory.Create(ctx, rec))
	return b.ID
}

func (f *fixture) inventory(bookID uint) *inventory.Record {
	f.t.Helper()
	rec, err := f.repos.Inventory.FindByBookID(context.Background(), bookID)
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) activeCount() int64 {
	f.t.Helper()
	_, total, err := f.repos.Checkouts.List(context.Background(), checkout.ListParams{})
	require.NoError(f.t, err)
	return total
}

func (f *fixture) archiveCount() int64 {
	f.t.Helper()
	_, total, err := f.repos.Archives.List(context.Background(), checkout.ListParams{})
	require.NoError(f.t, err)
	return total
}

func TestLending_LastCopyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.addUser("alice@example.com"), f.addUser("bob@example.com")
	bookID := f.addBook(0, 1)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusPending, c.Status)

	rec := f.inventory(bookID)
	assert.Equal(t, 0, rec.Copies)
	assert.False(t, rec.Available)

	_, err = f.svc.CreateCheckout(ctx, bookID, bob)
	assert.True(t, errors.Is(err, checkout.ErrBookUnavailable))

	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.ReturnCheckout(ctx, c.ID)
	require.NoError(t, err)
	archived, err := f.svc.CompleteCheckout(ctx, c.ID)
	require.NoError(t, err)

	rec = f.inventory(bookID)
	assert.Equal(t, 1, rec.Copies)
	assert.True(t, rec.Available)
	assert.Equal(t, int64(0), f.activeCount())
	assert.Equal(t, int64(1), f.archiveCount())

	assert.Equal(t, bookID, archived.BookID)
	assert.Equal(t, alice, archived.UserID)
	assert.Equal(t, c.CheckoutDate, archived.CheckoutDate)
	assert.Equal(t, f.clock.Now(), archived.ReturnDate)
}

func TestLending_CreateCheckout_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")

	t.Run("零库存不可借且库存不变", func(t *testing.T) {
		bookID := f.addBook(0, 0)
		_, err := f.svc.CreateCheckout(ctx, bookID, alice)
		assert.True(t, errors.Is(err, checkout.ErrBookUnavailable))
		assert.Equal(t, 0, f.inventory(bookID).Copies)
	})

	t.Run("同一用户不能重复借同一本书", func(t *testing.T) {
		bookID := f.addBook(1, 3)
		_, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)

		_, err = f.svc.CreateCheckout(ctx, bookID, alice)
		assert.True(t, errors.Is(err, checkout.ErrDuplicateCheckout))
		assert.Equal(t, 2, f.inventory(bookID).Copies)
	})

	t.Run("图书不存在", func(t *testing.T) {
		_, err := f.svc.CreateCheckout(ctx, 999, alice)
		assert.True(t, errors.Is(err, book.ErrBookNotFound))
	})

	t.Run("用户不存在", func(t *testing.T) {
		bookID := f.addBook(2, 1)
		_, err := f.svc.CreateCheckout(ctx, bookID, 999)
		assert.True(t, errors.Is(err, apperrors.ErrUserNotFound))
		assert.Equal(t, 1, f.inventory(bookID).Copies)
	})

	t.Run("已借走最后一本时先报不可借", func(t *testing.T) {
		bookID := f.addBook(3, 1)
		_, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)

		_, err = f.svc.CreateCheckout(ctx, bookID, alice)
		assert.True(t, errors.Is(err, checkout.ErrBookUnavailable))
		assert.Equal(t, 0, f.inventory(bookID).Copies)
	})
}

func TestLending_DueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	assert.Equal(t, c.CheckoutDate.AddDate(0, 0, 15), c.DueDate)

	f.clock.Advance(time.Hour)
	_, err = f.svc.SetCheckoutStatus(ctx, c.ID, "missing")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	updated, err := f.svc.SetCheckoutStatus(ctx, c.ID, "overdue")
	require.NoError(t, err)

	assert.Equal(t, c.CheckoutDate, updated.CheckoutDate)
	assert.Equal(t, c.DueDate, updated.DueDate)
}

func TestLending_SetCheckoutStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)

	_, err = f.svc.SetCheckoutStatus(ctx, c.ID, "lost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkout.ErrInvalidStatus))

	stored, err := f.repos.Checkouts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusPending, stored.Status)

	returned, err := f.svc.SetCheckoutStatus(ctx, c.ID, "returned")
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)

	_, err = f.svc.SetCheckoutStatus(ctx, c.ID, "returned")
	assert.True(t, errors.Is(err, checkout.ErrAlreadyReturned))

	_, err = f.svc.SetCheckoutStatus(ctx, 999, "overdue")
	assert.True(t, errors.Is(err, checkout.ErrCheckoutNotFound))
}

func TestLending_ReturnCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)

	returned, err := f.svc.ReturnCheckoutByBook(ctx, bookID, alice)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusReturned, returned.Status)
	assert.Equal(t, 0, f.inventory(bookID).Copies, "归还不完结时副本数不变")

	_, err = f.svc.ReturnCheckout(ctx, c.ID)
	assert.True(t, errors.Is(err, checkout.ErrAlreadyReturned))

	_, err = f.svc.ReturnCheckout(ctx, 999)
	assert.True(t, errors.Is(err, checkout.ErrCheckoutNotFound))

	_, err = f.svc.ReturnCheckoutByBook(ctx, bookID, 999)
	assert.True(t, errors.Is(err, checkout.ErrCheckoutNotFound))
}

func TestLending_CompleteCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 2)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)

	t.Run("未归还不能完结且记录保留", func(t *testing.T) {
		_, err := f.svc.CompleteCheckout(ctx, c.ID)
		assert.True(t, errors.Is(err, checkout.ErrNotYetReturned))

		stored, err := f.repos.Checkouts.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout.StatusPending, stored.Status)
		assert.Equal(t, 1, f.inventory(bookID).Copies)
		assert.Equal(t, int64(0), f.archiveCount())
	})

	t.Run("完结后副本数恢复", func(t *testing.T) {
		_, err := f.svc.ReturnCheckout(ctx, c.ID)
		require.NoError(t, err)

		first, err := f.svc.CompleteCheckout(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, f.inventory(bookID).Copies)

		// 重试是幂等的
		again, err := f.svc.CompleteCheckout(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, 2, f.inventory(bookID).Copies)
		assert.Equal(t, int64(1), f.archiveCount())
	})

	t.Run("未知借阅", func(t *testing.T) {
		_, err := f.svc.CompleteCheckout(ctx, 999)
		assert.True(t, errors.Is(err, checkout.ErrCheckoutNotFound))
	})
}

// racingInventory 第一次加库存锁时先执行onLock,模拟另一个请求抢先拿到锁
type racingInventory struct {
	inventory.Repository
	onLock func(ctx context.Context)
}

func (r *racingInventory) LockByBookID(ctx context.Context, bookID uint) (*inventory.Record, error) {
	if hook := r.onLock; hook != nil {
		r.onLock = nil
		hook(ctx)
	}
	return r.Repository.LockByBookID(ctx, bookID)
}

func TestLending_CompleteCheckout_ConcurrentRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	_, err = f.svc.ReturnCheckout(ctx, c.ID)
	require.NoError(t, err)

	var winner *checkout.ArchivedCheckout
	racing := &racingInventory{Repository: f.repos.Inventory}
	racing.onLock = func(ctx context.Context) {
		var err error
		winner, err = f.svc.CompleteCheckout(ctx, c.ID)
		require.NoError(t, err)
	}
	repos := f.repos
	repos.Inventory = racing
	pub := &recordingPublisher{}
	svc := lending.NewService(f.store, repos, lending.WithClock(f.clock.Now), lending.WithPublisher(pub))

	got, err := svc.CompleteCheckout(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, winner.ID, got.ID)
	assert.Empty(t, pub.types(), "重放不重复发事件")
	assert.Equal(t, 1, f.inventory(bookID).Copies, "只入库一次")
	assert.Equal(t, int64(1), f.archiveCount())
	assert.Equal(t, int64(0), f.activeCount())
}

func TestLending_RoundTripRestoresCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")

	for copies := 1; copies <= 3; copies++ {
		bookID := f.addBook(copies, copies)
		before := f.inventory(bookID).Copies

		c, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)
		_, err = f.svc.ReturnCheckout(ctx, c.ID)
		require.NoError(t, err)
		_, err = f.svc.CompleteCheckout(ctx, c.ID)
		require.NoError(t, err)

		assert.Equal(t, before, f.inventory(bookID).Copies)
	}
}

func TestLending_ReturnBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	t.Run("pending直接归还并完结", func(t *testing.T) {
		_, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)

		a, err := f.svc.ReturnBook(ctx, bookID, alice)
		require.NoError(t, err)
		assert.Equal(t, alice, a.UserID)
		assert.Equal(t, 1, f.inventory(bookID).Copies)
		assert.Equal(t, int64(0), f.activeCount())
	})

	t.Run("已是returned状态也能完结", func(t *testing.T) {
		f.clock.Advance(time.Minute)
		c, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)
		_, err = f.svc.SetCheckoutStatus(ctx, c.ID, "returned")
		require.NoError(t, err)

		_, err = f.svc.ReturnBook(ctx, bookID, alice)
		require.NoError(t, err)
		assert.Equal(t, 1, f.inventory(bookID).Copies)
		assert.Equal(t, int64(2), f.archiveCount())
	})

	t.Run("没有在借记录", func(t *testing.T) {
		_, err := f.svc.ReturnBook(ctx, bookID, alice)
		assert.True(t, errors.Is(err, checkout.ErrCheckoutNotFound))
	})
}

// failingLogs 在第n次写流水时失败,用于验证事务回滚
type failingLogs struct {
	inventory.LogRepository
	failOn int
	calls  int
}

var errInjected = errors.New("injected failure")

func (l *failingLogs) Create(ctx context.Context, log *inventory.Log) error {
	l.calls++
	if l.calls == l.failOn {
		return errInjected
	}
	return l.LogRepository.Create(ctx, log)
}

func TestLending_RollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	t.Run("借书中途失败不留痕迹", func(t *testing.T) {
		repos := f.repos
		repos.InventoryLogs = &failingLogs{LogRepository: f.repos.InventoryLogs, failOn: 1}
		svc := lending.NewService(f.store, repos, lending.WithClock(f.clock.Now))

		_, err := svc.CreateCheckout(ctx, bookID, alice)
		assert.True(t, errors.Is(err, errInjected))
		assert.Equal(t, 1, f.inventory(bookID).Copies)
		assert.Equal(t, int64(0), f.activeCount())
	})

	t.Run("完结中途失败不归档也不删除", func(t *testing.T) {
		c, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)
		_, err = f.svc.ReturnCheckout(ctx, c.ID)
		require.NoError(t, err)

		repos := f.repos
		repos.InventoryLogs = &failingLogs{LogRepository: f.repos.InventoryLogs, failOn: 1}
		svc := lending.NewService(f.store, repos, lending.WithClock(f.clock.Now))

		_, err = svc.CompleteCheckout(ctx, c.ID)
		assert.True(t, errors.Is(err, errInjected))
		assert.Equal(t, 0, f.inventory(bookID).Copies)
		assert.Equal(t, int64(1), f.activeCount())
		assert.Equal(t, int64(0), f.archiveCount())
	})

	t.Run("请求取消时回滚", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		bookID := f.addBook(1, 1)

		_, err := f.svc.CreateCheckout(cctx, bookID, alice)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 1, f.inventory(bookID).Copies)
	})
}

// racyArchives 模拟并发下同一幂等键出现多条历史
type racyArchives struct {
	checkout.ArchiveRepository
	extraID uint
	deleted []uint
}

func (r *racyArchives) FindByKey(ctx context.Context, key string) ([]*checkout.ArchivedCheckout, error) {
	rows, err := r.ArchiveRepository.FindByKey(ctx, key)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	dup := *rows[0]
	dup.ID = r.extraID
	return append(rows, &dup), nil
}

func (r *racyArchives) DeleteByIDs(ctx context.Context, ids []uint) error {
	r.deleted = append(r.deleted, ids...)
	return r.ArchiveRepository.DeleteByIDs(ctx, ids)
}

func TestLending_CollapseDuplicateArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	racy := &racyArchives{ArchiveRepository: f.repos.Archives, extraID: 1000}
	repos := f.repos
	repos.Archives = racy
	svc := lending.NewService(f.store, repos, lending.WithClock(f.clock.Now))

	c, err := svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	_, err = svc.ReturnCheckout(ctx, c.ID)
	require.NoError(t, err)

	a, err := svc.CompleteCheckout(ctx, c.ID)
	require.NoError(t, err)
	assert.Less(t, a.ID, racy.extraID, "保留ID最小的记录")
	assert.Equal(t, []uint{1000}, racy.deleted)
	assert.Equal(t, int64(1), f.archiveCount())
}

func TestLending_ConcurrentLastCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bookID := f.addBook(0, 1)

	const n = 20
	users := make([]uint, n)
	for i := range users {
		users[i] = f.addUser(fmt.Sprintf("u%d@example.com", i))
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			_, err := f.svc.CreateCheckout(ctx, bookID, uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, checkout.ErrBookUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, unavailable)
	rec := f.inventory(bookID)
	assert.Equal(t, 0, rec.Copies)
	assert.True(t, rec.Consistent())
}

func TestLending_ConcurrentSamePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateCheckout(ctx, bookID, alice)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, checkout.ErrDuplicateCheckout), "got %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(1), f.activeCount())
	assert.Equal(t, 4, f.inventory(bookID).Copies)
}

func TestLending_RandomSequenceKeepsInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(42))

	var users, books []uint
	for i := 0; i < 4; i++ {
		users = append(users, f.addUser(fmt.Sprintf("r%d@example.com", i)))
	}
	for i := 0; i < 3; i++ {
		books = append(books, f.addBook(i, i))
	}

	for step := 0; step < 300; step++ {
		f.clock.Advance(time.Minute)
		uid := users[rnd.Intn(len(users))]
		bid := books[rnd.Intn(len(books))]

		switch rnd.Intn(4) {
		case 0:
			_, _ = f.svc.CreateCheckout(ctx, bid, uid)
		case 1:
			_, _ = f.svc.ReturnCheckoutByBook(ctx, bid, uid)
		case 2:
			if c, err := f.repos.Checkouts.LockByUserAndBook(ctx, uid, bid); err == nil {
				_, _ = f.svc.CompleteCheckout(ctx, c.ID)
			}
		case 3:
			_, _ = f.svc.ReturnBook(ctx, bid, uid)
		}

		for i, bid := range books {
			rec := f.inventory(bid)
			require.True(t, rec.Consistent(), "step %d: %+v", step, rec)
			open, err := f.repos.Checkouts.CountByBook(ctx, bid)
			require.NoError(t, err)
			// 初始副本数 = 当前副本数 + 在借数
			require.Equal(t, i, rec.Copies+int(open), "step %d book %d", step, bid)
		}
	}
}

func TestLending_MarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.addUser("alice@example.com"), f.addUser("bob@example.com")
	bookID := f.addBook(0, 2)

	early, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	f.clock.Advance(10 * 24 * time.Hour)
	late, err := f.svc.CreateCheckout(ctx, bookID, bob)
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)
	n, err := f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.repos.Checkouts.FindByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusOverdue, got.Status)

	got, err = f.repos.Checkouts.FindByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusPending, got.Status)

	n, err = f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// fakeCache 与Redis实现相同的版本比较语义
type fakeCache struct {
	mu          sync.Mutex
	data        map[uint]inventory.Record
	invalidated []uint
	beforeSet   func(r *inventory.Record)
}

func (c *fakeCache) Get(_ context.Context, bookID uint) (*inventory.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.data[bookID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(_ context.Context, r *inventory.Record) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook(r)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.data[r.BookID]; ok && cur.Version >= r.Version {
		return nil
	}
	c.data[r.BookID] = *r
	return nil
}

func (c *fakeCache) cached(bookID uint) (inventory.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[bookID]
	return r, ok
}

func (c *fakeCache) Invalidate(_ context.Context, ids ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.data, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e ports.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func TestLending_CacheAndEvents(t *testing.T) {
	cache := &fakeCache{data: map[uint]inventory.Record{}}
	pub := &recordingPublisher{}
	f := newFixture(t, lending.WithCache(cache), lending.WithPublisher(pub))
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	rec, err := f.svc.GetInventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Copies)
	assert.Contains(t, cache.data, bookID, "未命中后回填缓存")

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	cached, ok := cache.cached(bookID)
	require.True(t, ok, "借书提交后写入最新库存")
	assert.Equal(t, 0, cached.Copies)
	assert.False(t, cached.Available)

	rec, err = f.svc.GetInventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Copies)
	assert.False(t, rec.Available)

	_, err = f.svc.ReturnCheckout(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.CompleteCheckout(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		ports.EventCheckoutCreated,
		ports.EventCheckoutReturned,
		ports.EventCheckoutCompleted,
	}, pub.types())

	cached, _ = cache.cached(bookID)
	assert.Equal(t, 1, cached.Copies, "完结后写入归还后的库存")

	_, err = f.svc.GetInventory(ctx, 999)
	assert.True(t, errors.Is(err, book.ErrBookNotFound))
}

func TestLending_StaleFillDoesNotOverwriteCommittedInventory(t *testing.T) {
	cache := &fakeCache{data: map[uint]inventory.Record{}}
	f := newFixture(t, lending.WithCache(cache))
	ctx := context.Background()
	alice := f.addUser("alice@example.com")
	bookID := f.addBook(0, 1)

	// 读到copies=1后、回填之前,另一请求借走最后一本并提交
	cache.beforeSet = func(*inventory.Record) {
		_, err := f.svc.CreateCheckout(ctx, bookID, alice)
		require.NoError(t, err)
	}
	rec, err := f.svc.GetInventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Copies, "本次读取发生在借书之前")

	db := f.inventory(bookID)
	require.Equal(t, 0, db.Copies)

	rec, err = f.svc.GetInventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, db.Copies, rec.Copies)
	assert.Equal(t, db.Available, rec.Available)
	assert.False(t, rec.Available)
}

func TestLending_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.addUser("alice@example.com"), f.addUser("bob@example.com")
	bookID := f.addBook(0, 2)

	c, err := f.svc.CreateCheckout(ctx, bookID, alice)
	require.NoError(t, err)
	_, err = f.svc.CreateCheckout(ctx, bookID, bob)
	require.NoError(t, err)

	_, err = f.svc.GetCheckout(ctx, lending.Actor{UserID: bob}, c.ID)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.GetCheckout(ctx, lending.Actor{UserID: bob, Librarian: true}, c.ID)
	assert.NoError(t, err)

	list, total, err := f.svc.ListCheckouts(ctx, lending.Actor{UserID: alice}, checkout.ListParams{UserID: bob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, alice, list[0].UserID, "普通读者的过滤条件被强制为本人")

	_, total, err = f.svc.ListCheckouts(ctx, lending.Actor{Librarian: true}, checkout.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = f.svc.ReturnBook(ctx, bookID, alice)
	require.NoError(t, err)

	history, total, err := f.svc.ListHistory(ctx, lending.Actor{UserID: bob}, checkout.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, history)

	history, total, err = f.svc.ListHistory(ctx, lending.Actor{UserID: alice}, checkout.ListParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	require.NoError(t, f.svc.DeleteArchived(ctx, history[0].ID))
	assert.True(t, errors.Is(f.svc.DeleteArchived(ctx, history[0].ID), checkout.ErrArchiveNotFound))
}
