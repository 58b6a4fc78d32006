// Package dispute 支付争议：只做登记、审核与裁决，资金回退由后台另行操作
package dispute

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/notify"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"go.uber.org/zap"
)

type Store interface {
	domain.Transactor
	domain.DisputeRepo
	domain.SubmissionDirectory
}

var activeFrom = []domain.DisputeStatus{domain.DisputeOpen, domain.DisputeUnderReview}

type Service struct {
	store    Store
	locker   risk.Locker
	notifier domain.Notifier
	now      func() time.Time
}

func NewService(store Store, locker risk.Locker, notifier domain.Notifier) *Service {
	if locker == nil {
		locker = risk.NewLocalLocker()
	}
	return &Service{
		store:    store,
		locker:   locker,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateDispute 只有提交的研究员或所属公司的项目负责人可以发起
// 同一个提交同时只能有一个未结案的争议
func (s *Service) CreateDispute(ctx context.Context, submissionID, disputedBy int64, typ, description string) (*domain.PaymentDispute, error) {
	dt, err := domain.ParseDisputeType(typ)
	if err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, domain.ErrValidation.WithMsg("dispute description is required")
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	var role domain.OwnerType
	switch disputedBy {
	case sub.ResearcherID:
		role = domain.OwnerResearcher
	case sub.CompanyOwnerID:
		role = domain.OwnerCompany
	default:
		return nil, domain.ErrNotAuthorized.WithMsg("user %d is not a party of submission %d", disputedBy, submissionID)
	}

	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("lock:dispute:%d", submissionID))
	if err != nil {
		return nil, domain.ErrConflict.WithMsg("another dispute request is in progress").WithCause(err)
	}
	defer unlock()

	d := &domain.PaymentDispute{
		SubmissionID:   submissionID,
		DisputedBy:     disputedBy,
		DisputedByRole: role,
		DisputeType:    dt,
		Description:    description,
		Status:         domain.DisputeOpen,
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		active, err := s.store.HasActiveDispute(txCtx, submissionID)
		if err != nil {
			return err
		}
		if active {
			return domain.ErrConflict.WithMsg("submission %d already has an open dispute", submissionID)
		}
		if err := s.store.CreateDispute(txCtx, d); err != nil {
			return err
		}
		return s.store.CreateDisputeEvent(txCtx, &domain.DisputeEvent{
			DisputeID: d.ID,
			ToStatus:  domain.DisputeOpen,
			ActorID:   disputedBy,
			Note:      string(dt),
		})
	})
	metrics.Op("dispute_create", err)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "争议已创建",
		zap.Int64("dispute_id", d.ID),
		zap.Int64("submission_id", submissionID),
		zap.Int64("disputed_by", disputedBy),
		zap.String("type", string(dt)),
	)
	return d, nil
}

// StartReview open -> under_review
func (s *Service) StartReview(ctx context.Context, disputeID, adminID int64) (*domain.PaymentDispute, error) {
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionDispute(txCtx, disputeID, []domain.DisputeStatus{domain.DisputeOpen}, domain.DisputeUnderReview, "", nil, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("dispute %d is not open", disputeID)
		}
		return s.store.CreateDisputeEvent(txCtx, &domain.DisputeEvent{
			DisputeID:  disputeID,
			FromStatus: domain.DisputeOpen,
			ToStatus:   domain.DisputeUnderReview,
			ActorID:    adminID,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "争议进入审核", zap.Int64("dispute_id", disputeID), zap.Int64("admin_id", adminID))
	return s.store.GetDispute(ctx, disputeID)
}

// ResolveDispute 结案，重复提交相同结论直接返回；已按另一结论结案返回 Conflict
func (s *Service) ResolveDispute(ctx context.Context, disputeID int64, status domain.DisputeStatus, resolution string, resolvedBy int64) (*domain.PaymentDispute, error) {
	if !status.Terminal() {
		return nil, domain.ErrValidation.WithMsg("dispute can only be resolved or rejected, got %q", status)
	}
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return s.settled(d, status)
	}

	from := d.Status
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionDispute(txCtx, disputeID, activeFrom, status, resolution, &resolvedBy, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return errRaced
		}
		return s.store.CreateDisputeEvent(txCtx, &domain.DisputeEvent{
			DisputeID:  disputeID,
			FromStatus: from,
			ToStatus:   status,
			ActorID:    resolvedBy,
			Note:       truncate(resolution, 512),
		})
	})
	if err == errRaced {
		// 并发结案，以先落库的结论为准
		if d, err = s.store.GetDispute(ctx, disputeID); err != nil {
			return nil, err
		}
		return s.settled(d, status)
	}
	metrics.Op("dispute_resolve", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "争议已结案",
		zap.Int64("dispute_id", disputeID),
		zap.String("status", string(status)),
		zap.Int64("resolved_by", resolvedBy),
	)
	s.notifyParties(ctx, d, status)
	return s.store.GetDispute(ctx, disputeID)
}

var errRaced = domain.ErrConflict.WithMsg("dispute changed concurrently")

func (s *Service) settled(d *domain.PaymentDispute, status domain.DisputeStatus) (*domain.PaymentDispute, error) {
	if d.Status == status {
		return d, nil
	}
	return nil, domain.ErrConflict.WithMsg("dispute %d already %s", d.ID, d.Status)
}

// notifyParties 通知研究员和公司负责人，查不到提交只记日志
func (s *Service) notifyParties(ctx context.Context, d *domain.PaymentDispute, status domain.DisputeStatus) {
	sub, err := s.store.GetSubmission(ctx, d.SubmissionID)
	if err != nil {
		logger.Warn(ctx, "争议通知查询提交失败", zap.Int64("dispute_id", d.ID), zap.Error(err))
		return
	}
	data := map[string]string{
		"dispute_id":    strconv.FormatInt(d.ID, 10),
		"submission_id": strconv.FormatInt(d.SubmissionID, 10),
		"status":        string(status),
	}
	for _, uid := range []int64{sub.ResearcherID, sub.CompanyOwnerID} {
		notify.Fire(ctx, s.notifier, domain.Notice{
			Kind:    domain.NoticeDisputeResolved,
			UserID:  uid,
			Subject: fmt.Sprintf("Payment dispute #%d has been %s", d.ID, status),
			Data:    data,
		})
	}
}

func (s *Service) GetDispute(ctx context.Context, id int64) (*domain.PaymentDispute, error) {
	return s.store.GetDispute(ctx, id)
}

func (s *Service) ListDisputes(ctx context.Context, submissionID int64) ([]domain.PaymentDispute, error) {
	return s.store.ListDisputes(ctx, submissionID)
}

func (s *Service) History(ctx context.Context, disputeID int64) ([]domain.DisputeEvent, error) {
	if _, err := s.store.GetDispute(ctx, disputeID); err != nil {
		return nil, err
	}
	return s.store.ListDisputeEvents(ctx, disputeID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
