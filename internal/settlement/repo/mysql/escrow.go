package mysql

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/orm"
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
)

// ========== EscrowRepo 接口实现 ==========

func (r *Repo) CreateEscrow(ctx context.Context, e *domain.EscrowAccount) error {
	if err := r.conn(ctx).Create(e).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("escrow for submission %d already exists", e.SubmissionID)
		}
		return xerr.Wrap(err, codes.Internal, "create escrow")
	}
	return nil
}

func (r *Repo) GetEscrow(ctx context.Context, id int64) (*domain.EscrowAccount, error) {
	var e domain.EscrowAccount
	if err := r.conn(ctx).First(&e, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrEscrowNotFound.WithMsg("escrow %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get escrow")
	}
	return &e, nil
}

func (r *Repo) GetEscrowBySubmission(ctx context.Context, submissionID int64) (*domain.EscrowAccount, error) {
	var e domain.EscrowAccount
	if err := r.conn(ctx).Where("submission_id = ?", submissionID).First(&e).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrEscrowNotFound.WithMsg("no escrow for submission %d", submissionID)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get escrow by submission")
	}
	return &e, nil
}

func (r *Repo) TransitionEscrow(ctx context.Context, id int64, from, to domain.EscrowStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case domain.EscrowReleased:
		updates["released_at"] = at
	case domain.EscrowRefunded:
		updates["refunded_at"] = at
	}
	res := r.conn(ctx).Model(&domain.EscrowAccount{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update escrow")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListExpiredEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowAccount, error) {
	if limit <= 0 {
		limit = orm.MaxPageSize
	}
	var out []domain.EscrowAccount
	err := r.conn(ctx).
		Where("status = ? AND expires_at <= ?", domain.EscrowHeld, now).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list expired escrows")
	}
	return out, nil
}

func (r *Repo) CreateCommission(ctx context.Context, c *domain.Commission) error {
	if err := r.conn(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrConflict.WithMsg("commission for submission %d already recorded", c.SubmissionID)
		}
		return xerr.Wrap(err, codes.Internal, "create commission")
	}
	return nil
}

func (r *Repo) ReverseCommission(ctx context.Context, escrowID int64) error {
	err := r.conn(ctx).Model(&domain.Commission{}).
		Where("escrow_id = ? AND reversed = ?", escrowID, false).
		Update("reversed", true).Error
	if err != nil {
		return xerr.Wrap(err, codes.Internal, "reverse commission")
	}
	return nil
}
