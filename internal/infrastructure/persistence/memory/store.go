// Package memory 进程内存储,实现全部领域仓储和事务接口
// 用于本地运行(database.driver=memory)和单元测试
package memory

import (
	"context"
	"sync"

	"github.com/xiebiao/library/internal/domain/book"
	"github.com/xiebiao/library/internal/domain/checkout"
	"github.com/xiebiao/library/internal/domain/inventory"
	"github.com/xiebiao/library/internal/domain/user"
)

type txKey struct{}

type state struct {
	users     map[uint]user.User
	books     map[uint]book.Book
	inventory map[uint]inventory.Record
	logs      map[uint]inventory.Log
	checkouts map[uint]checkout.ActiveCheckout
	archives  map[uint]checkout.ArchivedCheckout
	seq       map[string]uint
}

func newState() state {
	return state{
		users:     map[uint]user.User{},
		books:     map[uint]book.Book{},
		inventory: map[uint]inventory.Record{},
		logs:      map[uint]inventory.Log{},
		checkouts: map[uint]checkout.ActiveCheckout{},
		archives:  map[uint]checkout.ArchivedCheckout{},
		seq:       map[string]uint{},
	}
}

func (s state) clone() state {
	c := state{
		users:     make(map[uint]user.User, len(s.users)),
		books:     make(map[uint]book.Book, len(s.books)),
		inventory: make(map[uint]inventory.Record, len(s.inventory)),
		logs:      make(map[uint]inventory.Log, len(s.logs)),
		checkouts: make(map[uint]checkout.ActiveCheckout, len(s.checkouts)),
		archives:  make(map[uint]checkout.ArchivedCheckout, len(s.archives)),
		seq:       make(map[string]uint, len(s.seq)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = v
	}
	for k, v := range s.checkouts {
		c.checkouts[k] = v
	}
	for k, v := range s.archives {
		c.archives[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *state) nextID(table string) uint {
	s.seq[table]++
	return s.seq[table]
}

// Store 内存存储
// 事务期间持有全局互斥锁(等价于串行化隔离),出错或ctx取消时恢复快照
type Store struct {
	mu sync.Mutex
	st state
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{st: newState()}
}

// Transaction 实现ports.Transactor,嵌套调用复用外层事务
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	// fn panic时同样回滚,再把panic抛给调用方
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	// 提交前再检查一次,请求中途取消视为回滚
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// do 在锁内访问状态;已处于事务中时锁已被持有
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&s.st)
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// Books 图书仓储
func (s *Store) Books() book.Repository { return &bookRepo{s} }

// Users 用户仓储
func (s *Store) Users() user.Repository { return &userRepo{s} }

// Inventory 库存仓储
func (s *Store) Inventory() inventory.Repository { return &inventoryRepo{s} }

// InventoryLogs 库存流水仓储
func (s *Store) InventoryLogs() inventory.LogRepository { return &logRepo{s} }

// Checkouts 在借记录仓储
func (s *Store) Checkouts() checkout.Repository { return &checkoutRepo{s} }

// Archives 借阅历史仓储
func (s *Store) Archives() checkout.ArchiveRepository { return &archiveRepo{s} }

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
