package fiat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"go.uber.org/zap"
)

func escrowRef(id int64) string { return fmt.Sprintf("escrow:%d", id) }

// CreateEscrowForBounty 公司批准赏金后，从公司钱包划到托管账户
// 扣款、托管、抽成记录、流水在同一个事务里
func (s *Service) CreateEscrowForBounty(ctx context.Context, submissionID int64, amount domain.Money, companyID int64) (*domain.EscrowAccount, error) {
	if err := s.checkAmount(amount); err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrValidation.WithMsg("submission %d not found", submissionID)
		}
		return nil, err
	}
	if sub.CompanyID != companyID {
		return nil, domain.ErrNotAuthorized.WithMsg("submission %d does not belong to company %d", submissionID, companyID)
	}
	if _, err := s.store.GetEscrowBySubmission(ctx, submissionID); err == nil {
		return nil, domain.ErrConflict.WithMsg("escrow for submission %d already exists", submissionID)
	} else if !errors.Is(err, domain.ErrEscrowNotFound) {
		return nil, err
	}

	tier := ""
	if s.tiers != nil {
		if tier, err = s.tiers.TierOf(ctx, companyID); err != nil {
			return nil, err
		}
	}
	fee, payout, rate, err := s.calculator.Split(amount, tier)
	if err != nil {
		return nil, err
	}

	wallet, err := s.store.GetWallet(ctx, domain.OwnerCompany, companyID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < amount.Amount {
		return nil, domain.ErrInsufficientBalance.WithMsg("company %d balance %s below %s", companyID, wallet.Available(), amount)
	}

	now := s.now()
	e := &domain.EscrowAccount{
		SubmissionID:       submissionID,
		CompanyID:          companyID,
		ResearcherID:       sub.ResearcherID,
		Amount:             amount.Amount,
		PlatformCommission: fee.Amount,
		ResearcherPayout:   payout.Amount,
		CommissionRateBps:  rate,
		Currency:           amount.Currency,
		Status:             domain.EscrowHeld,
		ExpiresAt:          now.Add(s.cfg.EscrowTTL),
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		// 条件扣款兜底并发，余额检查以这里为准
		if err := s.store.Debit(txCtx, domain.OwnerCompany, companyID, amount); err != nil {
			return err
		}
		if err := s.store.CreateEscrow(txCtx, e); err != nil {
			return err
		}
		if err := s.store.CreateCommission(txCtx, &domain.Commission{
			SubmissionID:     submissionID,
			EscrowID:         e.ID,
			TotalAmount:      amount.Amount,
			CommissionRate:   rate,
			CommissionAmount: fee.Amount,
			Currency:         amount.Currency,
		}); err != nil {
			return err
		}
		if err := s.store.AddTotals(txCtx, domain.OwnerCompany, companyID, amount.Amount, 0); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerCompany,
			OwnerID:     companyID,
			Type:        domain.TxEscrowHold,
			Amount:      -amount.Amount,
			Currency:    amount.Currency,
			Status:      domain.TxCompleted,
			Reference:   escrowRef(e.ID),
			Description: fmt.Sprintf("bounty for submission %d", submissionID),
		})
	})
	metrics.Op("escrow_create", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "赏金已托管",
		zap.Int64("escrow_id", e.ID),
		zap.Int64("submission_id", submissionID),
		zap.Int64("company_id", companyID),
		zap.String("amount", amount.String()),
		zap.String("commission", fee.String()),
		zap.Int("rate_bps", rate),
	)
	return e, nil
}

func (s *Service) GetEscrowBySubmission(ctx context.Context, submissionID int64) (*domain.EscrowAccount, error) {
	return s.store.GetEscrowBySubmission(ctx, submissionID)
}

// RefundExpiredEscrows 超期未释放的托管退回公司，抽成作废
// 返回成功退回的条数；单条失败记日志继续处理下一条
func (s *Service) RefundExpiredEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	list, err := s.store.ListExpiredEscrows(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	refunded := make([]domain.EscrowAccount, 0, len(list))
	for i := range list {
		e := &list[i]
		if err := s.refundEscrow(ctx, e, domain.EscrowHeld, "escrow expired"); err != nil {
			logger.Error(ctx, "托管到期退款失败", zap.Int64("escrow_id", e.ID), zap.Error(err))
			continue
		}
		refunded = append(refunded, *e)
	}
	if len(refunded) > 0 {
		logger.Info(ctx, "到期托管已退款", zap.Int("count", len(refunded)))
	}
	return refunded, nil
}

// refundEscrow 托管全额退回公司钱包，total_paid 同步冲回
// 调用方负责开启或复用事务
func (s *Service) refundEscrow(ctx context.Context, e *domain.EscrowAccount, from domain.EscrowStatus, reason string) error {
	amount := domain.NewMoney(e.Amount, e.Currency)
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionEscrow(txCtx, e.ID, from, domain.EscrowRefunded, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrConflict.WithMsg("escrow %d is no longer %s", e.ID, from)
		}
		if err := s.store.ReverseCommission(txCtx, e.ID); err != nil {
			return err
		}
		if err := s.store.Credit(txCtx, domain.OwnerCompany, e.CompanyID, amount); err != nil {
			return err
		}
		if err := s.store.AddTotals(txCtx, domain.OwnerCompany, e.CompanyID, -e.Amount, 0); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerCompany,
			OwnerID:     e.CompanyID,
			Type:        domain.TxEscrowRefund,
			Amount:      e.Amount,
			Currency:    e.Currency,
			Status:      domain.TxCompleted,
			Reference:   escrowRef(e.ID),
			Description: reason,
		})
	})
	metrics.Op("escrow_refund", err)
	if err == nil {
		logger.Info(ctx, "托管已退回公司",
			zap.Int64("escrow_id", e.ID),
			zap.Int64("company_id", e.CompanyID),
			zap.String("amount", amount.String()),
			zap.String("reason", reason),
		)
	}
	return err
}
