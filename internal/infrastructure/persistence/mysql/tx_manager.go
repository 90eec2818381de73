package mysql

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TxManager 事务管理器,实现ports.Transactor
// 1. fn内的所有Repository操作都会在同一事务中执行
// 2. fn返回error时ROLLBACK,返回nil时COMMIT
// 3. 事务DB通过context传递,嵌套调用复用外层事务
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
//
// 使用示例:
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    rec, err := inventoryRepo.LockByBookID(ctx, bookID) // SELECT ... FOR UPDATE
//	    if err != nil {
//	        return err
//	    }
//	    if err := rec.Decrement(now); err != nil {
//	        return err // 自动回滚
//	    }
//	    return inventoryRepo.Update(ctx, rec)
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// base 各仓储共用的DB获取
type base struct {
	db *gorm.DB
}

// getDB 从context获取事务DB,没有则使用默认DB
func (b base) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return b.db.WithContext(ctx)
}
