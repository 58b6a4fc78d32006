// Package storetest 提供基于 sqlite 内存库的测试仓储
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"bountyhub.com/internal/settlement/domain"
	smysql "bountyhub.com/internal/settlement/repo/mysql"
	"bountyhub.com/pkg/orm"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq int64

// NewDB 每个测试一个独立的内存库
// 单连接：sqlite 内存库在多连接下各自独立，同时也避免了表锁
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settlement_%d?mode=memory&cache=shared", atomic.AddInt64(&seq, 1))

	db, err := gorm.Open(sqlite.Open(dsn), orm.GormConfig("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(domain.Models()...))
	return db
}

// NewRepo 迁移好表结构的仓储
func NewRepo(t testing.TB) (*smysql.Repo, *gorm.DB) {
	db := NewDB(t)
	return smysql.New(db, domain.USD), db
}

// SeedSubmission 写入一条提交投影
func SeedSubmission(t testing.TB, db *gorm.DB, s domain.SubmissionRef) {
	t.Helper()
	require.NoError(t, db.Create(&s).Error)
}

// Fund 直接给钱包加余额
func Fund(t testing.TB, repo *smysql.Repo, owner domain.OwnerType, ownerID, cents int64) {
	t.Helper()
	require.NoError(t, repo.Credit(t.Context(), owner, ownerID, domain.NewMoney(cents, domain.USD)))
}
