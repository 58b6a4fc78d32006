package orm

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx 把事务对象放进 context，仓储层通过 Conn 取出
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn 如果 context 里有事务对象，就用事务对象
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// InTx ctx 是否已处于事务中
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}

// Transaction 开启事务；已经在事务里则直接复用，不再嵌套 savepoint
func Transaction(ctx context.Context, db *gorm.DB, fn func(txCtx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
