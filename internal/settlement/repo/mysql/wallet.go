package mysql

import (
	"context"
	"fmt"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/orm"
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ========== WalletRepo 接口实现 ==========

func (r *Repo) GetWallet(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.conn(ctx).
		Where("owner_type = ? AND owner_id = ?", owner, ownerID).
		First(&w).Error
	if err != nil {
		// 查无此记录不是错误，返回零余额钱包
		if isNotFound(err) {
			return &domain.Wallet{OwnerType: owner, OwnerID: ownerID, Currency: r.currency}, nil
		}
		return nil, xerr.Wrap(err, codes.Internal, "get wallet")
	}
	return &w, nil
}

// Credit 原子加钱 (存在则累加，不存在则插入)
func (r *Repo) Credit(ctx context.Context, owner domain.OwnerType, ownerID int64, m domain.Money) error {
	if m.Amount < 0 {
		return domain.ErrValidation.WithMsg("credit amount must not be negative")
	}
	return r.upsertDelta(ctx, owner, ownerID, m.Currency, m.Amount, 0, 0)
}

// Debit 条件扣减：balance >= amount 才会命中，命中 0 行即余额不足
func (r *Repo) Debit(ctx context.Context, owner domain.OwnerType, ownerID int64, m domain.Money) error {
	if m.Amount < 0 {
		return domain.ErrValidation.WithMsg("debit amount must not be negative")
	}
	res := r.conn(ctx).Model(&domain.Wallet{}).
		Where("owner_type = ? AND owner_id = ? AND balance >= ?", owner, ownerID, m.Amount).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", m.Amount),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return xerr.Wrap(res.Error, codes.Internal, "debit wallet")
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficientBalance.WithMsg("%s %d balance below %s", owner, ownerID, m)
	}
	return nil
}

func (r *Repo) AddTotals(ctx context.Context, owner domain.OwnerType, ownerID int64, paid, deposited int64) error {
	return r.upsertDelta(ctx, owner, ownerID, r.currency, 0, paid, deposited)
}

func (r *Repo) upsertDelta(ctx context.Context, owner domain.OwnerType, ownerID int64, cur domain.Currency, balance, paid, deposited int64) error {
	if cur == "" {
		cur = r.currency
	}
	w := domain.Wallet{
		OwnerType:      owner,
		OwnerID:        ownerID,
		Currency:       cur,
		Balance:        balance,
		TotalPaid:      paid,
		TotalDeposited: deposited,
	}
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", balance),
			"total_paid":      gorm.Expr("total_paid + ?", paid),
			"total_deposited": gorm.Expr("total_deposited + ?", deposited),
			"version":         gorm.Expr("version + 1"),
		}),
	}).Create(&w).Error
	if err != nil {
		return xerr.Wrap(err, codes.Internal, fmt.Sprintf("update wallet %s:%d", owner, ownerID))
	}
	return nil
}

func (r *Repo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := r.conn(ctx).Create(tx).Error; err != nil {
		return xerr.Wrap(err, codes.Internal, "create transaction")
	}
	return nil
}

func (r *Repo) ListTransactions(ctx context.Context, owner domain.OwnerType, ownerID int64, page, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := orm.Paginate(r.conn(ctx), page, limit).
		Where("owner_type = ? AND owner_id = ?", owner, ownerID).
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list transactions")
	}
	return out, nil
}
