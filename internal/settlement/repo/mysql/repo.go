package mysql

import (
	"context"
	"errors"
	"strings"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/orm"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Repo 实现结算域所有仓储接口
type Repo struct {
	db       *gorm.DB
	currency domain.Currency // 钱包本位币，新建钱包时使用
}

func New(db *gorm.DB, currency domain.Currency) *Repo {
	if currency == "" {
		currency = domain.USD
	}
	return &Repo{db: db, currency: currency}
}

// Transaction 事务对象通过 ctx 传播，fn 里的仓储调用都要用 txCtx
func (r *Repo) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return orm.Transaction(ctx, r.db, fn)
}

// AutoMigrate 建表，生产环境由迁移脚本负责，这里给测试和本地开发用
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(domain.Models()...)
}

func (r *Repo) conn(ctx context.Context) *gorm.DB {
	return orm.Conn(ctx, r.db)
}

// isDuplicate 唯一键冲突：MySQL 1062，sqlite 的 UNIQUE constraint
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
