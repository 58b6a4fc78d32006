package mysql

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/xerr"
	"google.golang.org/grpc/codes"
)

// ========== DisputeRepo / SubmissionDirectory 接口实现 ==========

var activeDisputes = []domain.DisputeStatus{domain.DisputeOpen, domain.DisputeUnderReview}

func (r *Repo) CreateDispute(ctx context.Context, d *domain.PaymentDispute) error {
	if err := r.conn(ctx).Create(d).Error; err != nil {
		return xerr.Wrap(err, codes.Internal, "create dispute")
	}
	return nil
}

func (r *Repo) GetDispute(ctx context.Context, id int64) (*domain.PaymentDispute, error) {
	var d domain.PaymentDispute
	if err := r.conn(ctx).First(&d, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("dispute %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get dispute")
	}
	return &d, nil
}

func (r *Repo) ListDisputes(ctx context.Context, submissionID int64) ([]domain.PaymentDispute, error) {
	var out []domain.PaymentDispute
	if err := r.conn(ctx).Where("submission_id = ?", submissionID).Order("id DESC").Find(&out).Error; err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list disputes")
	}
	return out, nil
}

func (r *Repo) HasActiveDispute(ctx context.Context, submissionID int64) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&domain.PaymentDispute{}).
		Where("submission_id = ? AND status IN ?", submissionID, activeDisputes).
		Count(&n).Error
	if err != nil {
		return false, xerr.Wrap(err, codes.Internal, "check active dispute")
	}
	return n > 0, nil
}

func (r *Repo) TransitionDispute(ctx context.Context, id int64, from []domain.DisputeStatus, to domain.DisputeStatus, resolution string, resolvedBy *int64, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to.Terminal() {
		updates["resolution"] = resolution
		updates["resolved_by"] = resolvedBy
		updates["resolved_at"] = at
	}
	res := r.conn(ctx).Model(&domain.PaymentDispute{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, xerr.Wrap(res.Error, codes.Internal, "update dispute")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) CreateDisputeEvent(ctx context.Context, e *domain.DisputeEvent) error {
	if err := r.conn(ctx).Create(e).Error; err != nil {
		return xerr.Wrap(err, codes.Internal, "create dispute event")
	}
	return nil
}

func (r *Repo) ListDisputeEvents(ctx context.Context, disputeID int64) ([]domain.DisputeEvent, error) {
	var out []domain.DisputeEvent
	if err := r.conn(ctx).Where("dispute_id = ?", disputeID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, xerr.Wrap(err, codes.Internal, "list dispute events")
	}
	return out, nil
}

func (r *Repo) GetSubmission(ctx context.Context, id int64) (*domain.SubmissionRef, error) {
	var s domain.SubmissionRef
	if err := r.conn(ctx).First(&s, id).Error; err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound.WithMsg("submission %d", id)
		}
		return nil, xerr.Wrap(err, codes.Internal, "get submission")
	}
	return &s, nil
}
