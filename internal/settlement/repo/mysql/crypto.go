package mysql

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/orm"
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm"
)

// ========== CryptoRepo 接口实现 ==========

// 不计入提现频次/额度的终态
var inactiveWithdrawals = []domain.WithdrawalStatus{domain.WithdrawalRejected, domain.WithdrawalCancelled}

func (r *Repo) CreateWallet(ctx context.Context, w *domain.CryptoWallet) error {
	if err := r.conn(ctx).Create(w).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrDuplicateWallet.WithMsg("address %s already registered", w.AddressMasked)
		}
		return xerr.Wrap(err, codes.Internal, "create crypto wallet")
	}
	return nil
}

func (r *Repo) TransitionWalletVerification(ctx context.Context, id int64, from, to domain.VerificationStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"verification_status": to,
		"is_verified":         to == domain.VerificationVerified,
	}
	if to == domain.VerificationVerified {
		updates["verified_at"] = at
	}
	res := r.conn(ctx).Model(&domain.CryptoWallet{}).
		Where("id = ? AND verification_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update wallet verification")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) GetCryptoWallet(ctx context.Context, id int64) (*domain.CryptoWallet, error) {
	var w domain.CryptoWallet
	if err := r.conn(ctx).First(&w, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("crypto wallet %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get crypto wallet")
	}
	return &w, nil
}

func (r *Repo) ListWallets(ctx context.Context, userID int64) ([]domain.CryptoWallet, error) {
	var out []domain.CryptoWallet
	if err := r.conn(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list crypto wallets")
	}
	return out, nil
}

func (r *Repo) CreateWithdrawal(ctx context.Context, w *domain.CryptoWithdrawal) error {
	if err := r.conn(ctx).Create(w).Error; err != nil {
		return xerr.Wrap(err, codes.Internal, "create withdrawal")
	}
	return nil
}

func (r *Repo) GetWithdrawal(ctx context.Context, id int64) (*domain.CryptoWithdrawal, error) {
	var w domain.CryptoWithdrawal
	if err := r.conn(ctx).First(&w, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("withdrawal %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get withdrawal")
	}
	return &w, nil
}

// TransitionWithdrawal 状态条件 + 版本号自增，审核并发时只有一方能成功
func (r *Repo) TransitionWithdrawal(ctx context.Context, id int64, from, to domain.WithdrawalStatus, u domain.WithdrawalUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":  to,
		"version": gorm.Expr("version + 1"),
	}
	if u.ReviewedBy != 0 {
		updates["reviewed_by"] = u.ReviewedBy
		updates["reviewed_at"] = u.At
	}
	if u.RejectionReason != "" {
		updates["rejection_reason"] = u.RejectionReason
	}
	if u.TxHash != "" {
		updates["tx_hash"] = u.TxHash
	}
	if u.FailureReason != "" {
		updates["failure_reason"] = u.FailureReason
	}
	res := r.conn(ctx).Model(&domain.CryptoWithdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update withdrawal")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListWithdrawals(ctx context.Context, userID int64, page, limit int) ([]domain.CryptoWithdrawal, error) {
	var out []domain.CryptoWithdrawal
	err := orm.Paginate(r.conn(ctx), page, limit).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list withdrawals")
	}
	return out, nil
}

func (r *Repo) CountWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var n int64
	err := r.conn(ctx).Model(&domain.CryptoWithdrawal{}).
		Where("user_id = ? AND created_at >= ? AND status NOT IN ?", userID, since, inactiveWithdrawals).
		Count(&n).Error
	if err != nil {
		return 0, xerr.Wrap(err, codes.Internal, "count withdrawals")
	}
	return n, nil
}

func (r *Repo) SumWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var sum int64
	err := r.conn(ctx).Model(&domain.CryptoWithdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND created_at >= ? AND status NOT IN ?", userID, since, inactiveWithdrawals).
		Scan(&sum).Error
	if err != nil {
		return 0, xerr.Wrap(err, codes.Internal, "sum withdrawals")
	}
	return sum, nil
}

func (r *Repo) CreateCryptoIntent(ctx context.Context, c *domain.CryptoPaymentIntent) error {
	if err := r.conn(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("merchant order %s already exists", c.MerchantOrderID)
		}
		return xerr.Wrap(err, codes.Internal, "create crypto payment intent")
	}
	return nil
}

func (r *Repo) GetCryptoIntentByOrder(ctx context.Context, merchantOrderID string) (*domain.CryptoPaymentIntent, error) {
	var c domain.CryptoPaymentIntent
	if err := r.conn(ctx).Where("merchant_order_id = ?", merchantOrderID).First(&c).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("merchant order %s", merchantOrderID)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get crypto payment intent")
	}
	return &c, nil
}

func (r *Repo) TransitionCryptoIntent(ctx context.Context, merchantOrderID string, from, to domain.CryptoIntentStatus, u domain.CryptoIntentUpdate) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if u.ProviderOrderID != "" {
		updates["provider_order_id"] = u.ProviderOrderID
	}
	if u.CheckoutURL != "" {
		updates["checkout_url"] = u.CheckoutURL
	}
	if u.QRContent != "" {
		updates["qr_content"] = u.QRContent
	}
	if u.ExpiresAt != nil {
		updates["expires_at"] = *u.ExpiresAt
	}
	if u.FailureReason != "" {
		updates["failure_reason"] = u.FailureReason
	}
	if to == domain.CryptoIntentCompleted {
		updates["completed_at"] = u.At
	}
	res := r.conn(ctx).Model(&domain.CryptoPaymentIntent{}).
		Where("merchant_order_id = ? AND status = ?", merchantOrderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update crypto payment intent")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) CreateCryptoTx(ctx context.Context, t *domain.CryptoTransaction) error {
	if err := r.conn(ctx).Create(t).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("crypto transaction already recorded")
		}
		return xerr.Wrap(err, codes.Internal, "create crypto transaction")
	}
	return nil
}

func (r *Repo) GetCryptoTx(ctx context.Context, id int64) (*domain.CryptoTransaction, error) {
	var t domain.CryptoTransaction
	if err := r.conn(ctx).First(&t, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("crypto transaction %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get crypto transaction")
	}
	return &t, nil
}

func (r *Repo) TransitionCryptoTx(ctx context.Context, id int64, from, to domain.CryptoTxStatus, reviewer int64, at time.Time) (bool, error) {
	return r.transitionCryptoTx(r.conn(ctx).Where("id = ?", id), from, to, reviewer, at)
}

func (r *Repo) TransitionWithdrawalTx(ctx context.Context, withdrawalID int64, from, to domain.CryptoTxStatus, reviewer int64, at time.Time) (bool, error) {
	return r.transitionCryptoTx(r.conn(ctx).Where("withdrawal_id = ?", withdrawalID), from, to, reviewer, at)
}

func (r *Repo) transitionCryptoTx(scope *gorm.DB, from, to domain.CryptoTxStatus, reviewer int64, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if reviewer != 0 {
		updates["reviewed_by"] = reviewer
		updates["reviewed_at"] = at
	}
	res := scope.Model(&domain.CryptoTransaction{}).
		Where("status = ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update crypto transaction")
	}
	return res.RowsAffected > 0, nil
}

// ListWithdrawalsByStatus 后台审核队列，先到先审
func (r *Repo) ListWithdrawalsByStatus(ctx context.Context, status domain.WithdrawalStatus, page, limit int) ([]domain.CryptoWithdrawal, error) {
	var out []domain.CryptoWithdrawal
	err := orm.Paginate(r.conn(ctx), page, limit).
		Where("status = ?", status).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list withdrawals by status")
	}
	return out, nil
}

func (r *Repo) ListCryptoTxByStatus(ctx context.Context, typ domain.CryptoTxType, status domain.CryptoTxStatus, page, limit int) ([]domain.CryptoTransaction, error) {
	var out []domain.CryptoTransaction
	err := orm.Paginate(r.conn(ctx), page, limit).
		Where("type = ? AND status = ?", typ, status).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list crypto transactions")
	}
	return out, nil
}
