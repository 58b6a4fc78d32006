package fiat

import (
	"context"
	"fmt"
	"strconv"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/notify"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"bountyhub.com/pkg/secure"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

type ReleaseRequest struct {
	SubmissionID    int64
	PaymentMethodID int64
	// Details 本次打款的补充参数，覆盖收款方式里的同名字段
	Details        map[string]string
	ReviewRequired bool
}

// ReleaseEscrowAndPayout held -> released 并生成一条 pending 打款
// 不需要复核时立即执行打款；打款失败体现在返回的 Payout 状态上，不作为错误返回
func (s *Service) ReleaseEscrowAndPayout(ctx context.Context, req ReleaseRequest) (*domain.Payout, error) {
	e, err := s.store.GetEscrowBySubmission(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}
	if e.Status != domain.EscrowHeld {
		return nil, domain.ErrEscrowNotHeld.WithMsg("escrow %d is %s", e.ID, e.Status)
	}
	method, err := s.store.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if method.UserID != e.ResearcherID {
		return nil, domain.ErrNotAuthorized.WithMsg("payment method %d does not belong to researcher %d", method.ID, e.ResearcherID)
	}
	details, err := s.mergeDetails(method, req.Details)
	if err != nil {
		return nil, err
	}

	p := &domain.Payout{
		EscrowID:        e.ID,
		SubmissionID:    e.SubmissionID,
		ResearcherID:    e.ResearcherID,
		Amount:          e.ResearcherPayout,
		Currency:        e.Currency,
		PaymentMethodID: method.ID,
		MethodType:      method.Type,
		Details:         details,
		Status:          domain.PayoutPending,
		ReviewRequired:  req.ReviewRequired,
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionEscrow(txCtx, e.ID, domain.EscrowHeld, domain.EscrowReleased, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrEscrowNotHeld.WithMsg("escrow %d is no longer held", e.ID)
		}
		return s.store.CreatePayout(txCtx, p)
	})
	metrics.Op("escrow_release", err)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "托管已释放",
		zap.Int64("escrow_id", e.ID),
		zap.Int64("payout_id", p.ID),
		zap.Int64("researcher_id", p.ResearcherID),
		zap.String("amount", p.Money().String()),
		zap.Bool("review_required", p.ReviewRequired),
	)

	if p.ReviewRequired {
		return p, nil
	}
	return s.ProcessPayout(ctx, p.ID)
}

// RequestPayout 研究员发起领取：风控检查 + 释放托管，按用户串行
func (s *Service) RequestPayout(ctx context.Context, researcherID, submissionID, paymentMethodID int64, details map[string]string, ip string) (*domain.Payout, error) {
	e, err := s.store.GetEscrowBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if e.ResearcherID != researcherID {
		return nil, domain.ErrNotAuthorized.WithMsg("escrow %d belongs to another researcher", e.ID)
	}

	unlock, err := s.lockUser(ctx, "payout", researcherID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	verdict, err := s.guard.CheckPayout(ctx, researcherID, domain.NewMoney(e.ResearcherPayout, e.Currency), ip)
	if err != nil {
		return nil, err
	}
	if verdict.RateLimited {
		return nil, domain.ErrRateLimitExceeded.WithMsg("payout rate limit exceeded")
	}
	if verdict.Blocked {
		return nil, domain.ErrPayoutBlocked.WithMsg("PayoutBlocked: %s", verdict.Reason)
	}
	return s.ReleaseEscrowAndPayout(ctx, ReleaseRequest{
		SubmissionID:    submissionID,
		PaymentMethodID: paymentMethodID,
		Details:         details,
		ReviewRequired:  verdict.Review,
	})
}

// ProcessPayout pending -> processing -> completed/failed
// 三方调用有超时；失败原因写在打款记录上。
// 一旦开始就跑到终态，调用方断开不影响后续状态写入
func (s *Service) ProcessPayout(ctx context.Context, payoutID int64) (*domain.Payout, error) {
	ctx = context.WithoutCancel(ctx)
	p, err := s.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.ReviewRequired {
		return nil, domain.ErrInvalidTransition.WithMsg("payout %d is waiting for review", payoutID)
	}
	moved, err := s.store.TransitionPayout(ctx, p.ID, domain.PayoutPending, domain.PayoutProcessing,
		domain.PayoutUpdate{IncAttempts: true, At: s.now()})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrInvalidTransition.WithMsg("payout %d is not pending", payoutID)
	}
	p.Attempts++

	externalID, sendErr := s.send(ctx, p)
	if sendErr != nil {
		return s.failPayout(ctx, p, sendErr)
	}
	return s.completePayout(ctx, p, externalID)
}

func (s *Service) send(ctx context.Context, p *domain.Payout) (string, error) {
	if p.MethodType == domain.MethodPlatformBalance {
		// 站内余额不走三方，完成时直接入研究员钱包
		return fmt.Sprintf("balance-%d", p.ID), nil
	}
	details, err := s.openDetails(p.Details)
	if err != nil {
		return "", err
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.PayoutTimeout)
	defer cancel()
	return s.rail.Send(sendCtx, domain.PayoutOrder{
		PayoutID:     p.ID,
		ResearcherID: p.ResearcherID,
		Amount:       p.Money(),
		Method:       p.MethodType,
		Details:      details,
		Attempt:      p.Attempts,
	})
}

func (s *Service) completePayout(ctx context.Context, p *domain.Payout, externalID string) (*domain.Payout, error) {
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionPayout(txCtx, p.ID, domain.PayoutProcessing, domain.PayoutCompleted,
			domain.PayoutUpdate{ExternalTransactionID: externalID, At: s.now()})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrConflict.WithMsg("payout %d is no longer processing", p.ID)
		}
		if p.MethodType == domain.MethodPlatformBalance {
			if err := s.store.Credit(txCtx, domain.OwnerResearcher, p.ResearcherID, p.Money()); err != nil {
				return err
			}
		}
		if err := s.store.AddTotals(txCtx, domain.OwnerResearcher, p.ResearcherID, p.Amount, 0); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerResearcher,
			OwnerID:     p.ResearcherID,
			Type:        domain.TxPayout,
			Amount:      p.Amount,
			Currency:    p.Currency,
			Status:      domain.TxCompleted,
			Reference:   fmt.Sprintf("payout:%d", p.ID),
			Description: fmt.Sprintf("bounty payout via %s", p.MethodType),
		})
	})
	metrics.Op("payout", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "打款成功",
		zap.Int64("payout_id", p.ID),
		zap.Int64("researcher_id", p.ResearcherID),
		zap.String("amount", p.Money().String()),
		zap.String("method", string(p.MethodType)),
		zap.String("external_id", externalID),
	)
	notify.Fire(ctx, s.notifier, domain.Notice{
		Kind:    domain.NoticePayoutCompleted,
		UserID:  p.ResearcherID,
		Subject: "Your bounty payout has been sent",
		Data: map[string]string{
			"payout_id": strconv.FormatInt(p.ID, 10),
			"amount":    p.Money().String(),
			"method":    string(p.MethodType),
		},
	})
	return s.store.GetPayout(ctx, p.ID)
}

func (s *Service) failPayout(ctx context.Context, p *domain.Payout, cause error) (*domain.Payout, error) {
	reason := cause.Error()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	if _, err := s.store.TransitionPayout(ctx, p.ID, domain.PayoutProcessing, domain.PayoutFailed,
		domain.PayoutUpdate{FailureReason: reason, At: s.now()}); err != nil {
		return nil, err
	}
	metrics.Op("payout", cause)
	logger.Error(ctx, "打款失败",
		zap.Int64("payout_id", p.ID),
		zap.Int64("researcher_id", p.ResearcherID),
		zap.String("amount", p.Money().String()),
		zap.Int("attempt", p.Attempts),
		zap.Error(cause),
	)
	notify.Fire(ctx, s.notifier, domain.Notice{
		Kind:    domain.NoticePayoutFailed,
		UserID:  p.ResearcherID,
		Subject: "Your bounty payout could not be completed",
		Data:    map[string]string{"payout_id": strconv.FormatInt(p.ID, 10)},
	})
	return s.store.GetPayout(ctx, p.ID)
}

// ApproveReviewedPayout 后台复核通过后执行打款
func (s *Service) ApproveReviewedPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error) {
	p, err := s.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !p.ReviewRequired || p.Status != domain.PayoutPending {
		return nil, domain.ErrInvalidTransition.WithMsg("payout %d is not waiting for review", payoutID)
	}
	moved, err := s.store.TransitionPayout(ctx, p.ID, domain.PayoutPending, domain.PayoutPending,
		domain.PayoutUpdate{ClearReview: true, At: s.now()})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrConflict.WithMsg("payout %d changed concurrently", payoutID)
	}
	logger.Info(ctx, "大额打款复核通过", zap.Int64("admin_id", adminID), zap.Int64("payout_id", payoutID))
	return s.ProcessPayout(ctx, payoutID)
}

// RetryPayout failed -> pending 后重新打款，幂等键随尝试次数变化
func (s *Service) RetryPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error) {
	moved, err := s.store.TransitionPayout(ctx, payoutID, domain.PayoutFailed, domain.PayoutPending, domain.PayoutUpdate{At: s.now()})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrInvalidTransition.WithMsg("payout %d is not failed", payoutID)
	}
	logger.Info(ctx, "重试打款", zap.Int64("admin_id", adminID), zap.Int64("payout_id", payoutID))
	return s.ProcessPayout(ctx, payoutID)
}

// RefundFailedPayout 打款失败且不再重试：托管退回公司，抽成作废
func (s *Service) RefundFailedPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error) {
	p, err := s.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetEscrow(ctx, p.EscrowID)
	if err != nil {
		return nil, err
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionPayout(txCtx, p.ID, domain.PayoutFailed, domain.PayoutCancelled,
			domain.PayoutUpdate{FailureReason: p.FailureReason, At: s.now()})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("payout %d is not failed", p.ID)
		}
		return s.refundEscrow(txCtx, e, domain.EscrowReleased, fmt.Sprintf("payout %d refunded by admin %d", p.ID, adminID))
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetPayout(ctx, p.ID)
}

func (s *Service) ListPayouts(ctx context.Context, researcherID int64, page, limit int) ([]domain.Payout, error) {
	return s.store.ListPayouts(ctx, researcherID, page, limit)
}

// GetPayout 只能看自己的打款
func (s *Service) GetPayout(ctx context.Context, researcherID, payoutID int64) (*domain.Payout, error) {
	p, err := s.store.GetPayout(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.ResearcherID != researcherID {
		return nil, domain.ErrNotFound.WithMsg("payout %d", payoutID)
	}
	return p, nil
}

// ========== 收款方式 ==========

// AddPaymentMethod 收款参数加密存储，对外只展示脱敏后的 label
func (s *Service) AddPaymentMethod(ctx context.Context, userID int64, typ domain.MethodType, details map[string]string, isDefault bool) (*domain.PaymentMethod, error) {
	if _, err := domain.ParseMethodType(string(typ)); err != nil {
		return nil, err
	}
	if typ != domain.MethodPlatformBalance && len(details) == 0 {
		return nil, domain.ErrValidation.WithMsg("payment details are required for %s", typ)
	}
	sealed, err := s.sealDetails(details)
	if err != nil {
		return nil, err
	}
	m := &domain.PaymentMethod{
		UserID:    userID,
		Type:      typ,
		Label:     methodLabel(typ, details),
		Details:   sealed,
		IsDefault: isDefault,
	}
	if err := s.store.CreatePaymentMethod(ctx, m); err != nil {
		return nil, err
	}
	logger.Info(ctx, "新增收款方式", zap.Int64("user_id", userID), zap.Int64("method_id", m.ID), zap.String("type", string(typ)))
	return m, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context, userID int64) ([]domain.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, userID)
}

func (s *Service) mergeDetails(m *domain.PaymentMethod, extra map[string]string) (string, error) {
	if len(extra) == 0 {
		return m.Details, nil
	}
	base, err := s.openDetails(m.Details)
	if err != nil {
		return "", err
	}
	if base == nil {
		base = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		base[k] = v
	}
	return s.sealDetails(base)
}

func (s *Service) sealDetails(details map[string]string) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return s.cipher.Encrypt(string(b))
}

func (s *Service) openDetails(sealed string) (map[string]string, error) {
	if sealed == "" {
		return nil, nil
	}
	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(plain), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// methodLabel 取最能识别账户的字段做脱敏展示
func methodLabel(typ domain.MethodType, details map[string]string) string {
	for _, k := range []string{"email", "account_number", "iban", "address"} {
		if v := details[k]; v != "" {
			return fmt.Sprintf("%s %s", typ, secure.Mask(v))
		}
	}
	return string(typ)
}
