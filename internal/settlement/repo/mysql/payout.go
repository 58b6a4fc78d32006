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

// ========== PayoutRepo 接口实现 ==========

func (r *Repo) CreatePayout(ctx context.Context, p *domain.Payout) error {
	if err := r.conn(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("payout for escrow %d already exists", p.EscrowID)
		}
		return xerr.Wrap(err, codes.Internal, "create payout")
	}
	return nil
}

func (r *Repo) GetPayout(ctx context.Context, id int64) (*domain.Payout, error) {
	var p domain.Payout
	if err := r.conn(ctx).First(&p, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("payout %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get payout")
	}
	return &p, nil
}

// TransitionPayout failure_reason 每次迁移都覆盖写，重试成功后旧的失败原因会被清掉
func (r *Repo) TransitionPayout(ctx context.Context, id int64, from, to domain.PayoutStatus, u domain.PayoutUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":         to,
		"failure_reason": u.FailureReason,
	}
	if u.ExternalTransactionID != "" {
		updates["external_transaction_id"] = u.ExternalTransactionID
	}
	if u.IncAttempts {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	if u.ClearReview {
		updates["review_required"] = false
	}
	switch to {
	case domain.PayoutProcessing:
		updates["processed_at"] = u.At
	case domain.PayoutCompleted:
		updates["completed_at"] = u.At
	}
	res := r.conn(ctx).Model(&domain.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update payout")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListPayouts(ctx context.Context, researcherID int64, page, limit int) ([]domain.Payout, error) {
	var out []domain.Payout
	err := orm.Paginate(r.conn(ctx), page, limit).
		Where("researcher_id = ?", researcherID).
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list payouts")
	}
	return out, nil
}

// CountLargePayoutsSince 失败和取消的不计入
func (r *Repo) CountLargePayoutsSince(ctx context.Context, researcherID, minAmount int64, since time.Time) (int64, error) {
	var n int64
	err := r.conn(ctx).Model(&domain.Payout{}).
		Where("researcher_id = ? AND amount >= ? AND created_at >= ?", researcherID, minAmount, since).
		Where("status IN ?", []domain.PayoutStatus{domain.PayoutPending, domain.PayoutProcessing, domain.PayoutCompleted}).
		Count(&n).Error
	if err != nil {
		return 0, xerr.Wrap(err, codes.Internal, "count large payouts")
	}
	return n, nil
}

func (r *Repo) CreatePaymentMethod(ctx context.Context, m *domain.PaymentMethod) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if m.IsDefault {
			if err := tx.Model(&domain.PaymentMethod{}).
				Where("user_id = ? AND is_default = ?", m.UserID, true).
				Update("is_default", false).Error; err != nil {
				return xerr.Wrap(err, codes.Internal, "reset default payment method")
			}
		}
		if err := tx.Create(m).Error; err != nil {
			return xerr.Wrap(err, codes.Internal, "create payment method")
		}
		return nil
	})
}

func (r *Repo) GetPaymentMethod(ctx context.Context, id int64) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	if err := r.conn(ctx).First(&m, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("payment method %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get payment method")
	}
	return &m, nil
}

func (r *Repo) ListPaymentMethods(ctx context.Context, userID int64) ([]domain.PaymentMethod, error) {
	var out []domain.PaymentMethod
	err := r.conn(ctx).Where("user_id = ?", userID).Order("is_default DESC, id ASC").Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list payment methods")
	}
	return out, nil
}
