package crypto

import (
	"context"
	"fmt"
	"strconv"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/notify"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"go.uber.org/zap"
)

// ========== 后台审核 ==========

func (s *Service) ListPendingWithdrawals(ctx context.Context, page, limit int) ([]domain.CryptoWithdrawal, error) {
	return s.store.ListWithdrawalsByStatus(ctx, domain.WithdrawalPending, page, limit)
}

func (s *Service) ListPendingDeposits(ctx context.Context, page, limit int) ([]domain.CryptoTransaction, error) {
	return s.store.ListCryptoTxByStatus(ctx, domain.CryptoTxDeposit, domain.CryptoTxPendingApproval, page, limit)
}

// RevealAddress 审核员打币前查看完整地址
func (s *Service) RevealAddress(ctx context.Context, adminID, withdrawalID int64) (string, error) {
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return "", err
	}
	addr, err := s.cipher.Decrypt(w.WalletAddress)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "查看提现地址", zap.Int64("admin_id", adminID), zap.Int64("withdrawal_id", withdrawalID))
	return addr, nil
}

// ApproveWithdrawal pending -> approved，同一事务里扣款
// 审核时余额不足整体回滚，提现保持 pending
func (s *Service) ApproveWithdrawal(ctx context.Context, adminID, withdrawalID int64) (*domain.CryptoWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	debit := domain.NewMoney(w.Amount, s.cfg.Currency)

	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionWithdrawal(txCtx, w.ID, domain.WithdrawalPending, domain.WithdrawalApproved,
			domain.WithdrawalUpdate{ReviewedBy: adminID, At: now})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("withdrawal %d is not pending", w.ID)
		}
		if err := s.store.Debit(txCtx, domain.OwnerResearcher, w.UserID, debit); err != nil {
			return err
		}
		if _, err := s.store.TransitionWithdrawalTx(txCtx, w.ID, domain.CryptoTxPendingApproval, domain.CryptoTxApproved, adminID, now); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerResearcher,
			OwnerID:     w.UserID,
			Type:        domain.TxCryptoWithdrawal,
			Amount:      -w.Amount,
			Currency:    s.cfg.Currency,
			Status:      domain.TxCompleted,
			Reference:   withdrawalRef(w.ID),
			Description: fmt.Sprintf("%s withdrawal to %s", w.Network, w.AddressMasked),
		})
	})
	metrics.Op("crypto_withdrawal_approve", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "提现审核通过",
		zap.Int64("admin_id", adminID),
		zap.Int64("withdrawal_id", w.ID),
		zap.Int64("user_id", w.UserID),
		zap.String("amount", debit.String()),
	)
	notify.Fire(ctx, s.notifier, domain.Notice{
		Kind:    domain.NoticeWithdrawalApproved,
		UserID:  w.UserID,
		Subject: "Your withdrawal was approved",
		Data:    map[string]string{"withdrawal_id": strconv.FormatInt(w.ID, 10), "amount": debit.String()},
	})
	return s.store.GetWithdrawal(ctx, w.ID)
}

// RejectWithdrawal pending -> rejected，不涉及余额
func (s *Service) RejectWithdrawal(ctx context.Context, adminID, withdrawalID int64, reason string) (*domain.CryptoWithdrawal, error) {
	if reason == "" {
		return nil, domain.ErrValidation.WithMsg("rejection reason is required")
	}
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionWithdrawal(txCtx, w.ID, domain.WithdrawalPending, domain.WithdrawalRejected,
			domain.WithdrawalUpdate{ReviewedBy: adminID, RejectionReason: truncate(reason, 255), At: now})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("withdrawal %d is not pending", w.ID)
		}
		_, err = s.store.TransitionWithdrawalTx(txCtx, w.ID, domain.CryptoTxPendingApproval, domain.CryptoTxRejected, adminID, now)
		return err
	})
	metrics.Op("crypto_withdrawal_reject", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "提现被拒绝", zap.Int64("admin_id", adminID), zap.Int64("withdrawal_id", w.ID), zap.String("reason", reason))
	notify.Fire(ctx, s.notifier, domain.Notice{
		Kind:    domain.NoticeWithdrawalRejected,
		UserID:  w.UserID,
		Subject: "Your withdrawal was rejected",
		Data:    map[string]string{"withdrawal_id": strconv.FormatInt(w.ID, 10), "reason": reason},
	})
	return s.store.GetWithdrawal(ctx, w.ID)
}

// CompleteWithdrawal approved -> completed，记录链上交易哈希
func (s *Service) CompleteWithdrawal(ctx context.Context, adminID, withdrawalID int64, txHash string) (*domain.CryptoWithdrawal, error) {
	if txHash == "" {
		return nil, domain.ErrValidation.WithMsg("tx hash is required")
	}
	now := s.now()
	err := s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionWithdrawal(txCtx, withdrawalID, domain.WithdrawalApproved, domain.WithdrawalCompleted,
			domain.WithdrawalUpdate{TxHash: txHash, At: now})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("withdrawal %d is not approved", withdrawalID)
		}
		_, err = s.store.TransitionWithdrawalTx(txCtx, withdrawalID, domain.CryptoTxApproved, domain.CryptoTxCompleted, adminID, now)
		return err
	})
	metrics.Op("crypto_withdrawal_complete", err)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "提现已完成", zap.Int64("admin_id", adminID), zap.Int64("withdrawal_id", withdrawalID), zap.String("tx_hash", txHash))
	return s.store.GetWithdrawal(ctx, withdrawalID)
}

// FailWithdrawal approved -> failed，已扣的钱退回
func (s *Service) FailWithdrawal(ctx context.Context, adminID, withdrawalID int64, reason string) (*domain.CryptoWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	refund := domain.NewMoney(w.Amount, s.cfg.Currency)
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionWithdrawal(txCtx, w.ID, domain.WithdrawalApproved, domain.WithdrawalFailed,
			domain.WithdrawalUpdate{FailureReason: truncate(reason, 255), At: now})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("withdrawal %d is not approved", w.ID)
		}
		if err := s.store.Credit(txCtx, domain.OwnerResearcher, w.UserID, refund); err != nil {
			return err
		}
		if _, err := s.store.TransitionWithdrawalTx(txCtx, w.ID, domain.CryptoTxApproved, domain.CryptoTxFailed, adminID, now); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   domain.OwnerResearcher,
			OwnerID:     w.UserID,
			Type:        domain.TxCryptoWithdrawalRefund,
			Amount:      w.Amount,
			Currency:    s.cfg.Currency,
			Status:      domain.TxCompleted,
			Reference:   withdrawalRef(w.ID),
			Description: "withdrawal failed: " + truncate(reason, 200),
		})
	})
	metrics.Op("crypto_withdrawal_fail", err)
	if err != nil {
		return nil, err
	}
	logger.Warn(ctx, "提现失败已退款",
		zap.Int64("admin_id", adminID),
		zap.Int64("withdrawal_id", w.ID),
		zap.String("amount", refund.String()),
		zap.String("reason", reason),
	)
	return s.store.GetWithdrawal(ctx, w.ID)
}

// ApproveDeposit 托管充值人工确认后入账
func (s *Service) ApproveDeposit(ctx context.Context, adminID, cryptoTxID int64) (*domain.CryptoTransaction, error) {
	tx, err := s.store.GetCryptoTx(ctx, cryptoTxID)
	if err != nil {
		return nil, err
	}
	if tx.Type != domain.CryptoTxDeposit {
		return nil, domain.ErrValidation.WithMsg("crypto transaction %d is not a deposit", cryptoTxID)
	}
	credit, err := s.ledgerAmount(tx.Money())
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionCryptoTx(txCtx, tx.ID, domain.CryptoTxPendingApproval, domain.CryptoTxApproved, adminID, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("crypto transaction %d is not pending approval", tx.ID)
		}
		if err := s.store.Credit(txCtx, tx.OwnerType, tx.OwnerID, credit); err != nil {
			return err
		}
		if err := s.store.AddTotals(txCtx, tx.OwnerType, tx.OwnerID, 0, credit.Amount); err != nil {
			return err
		}
		return s.store.CreateTransaction(txCtx, &domain.Transaction{
			OwnerType:   tx.OwnerType,
			OwnerID:     tx.OwnerID,
			Type:        domain.TxCryptoDeposit,
			Amount:      credit.Amount,
			Currency:    credit.Currency,
			Status:      domain.TxCompleted,
			Reference:   fmt.Sprintf("crypto_tx:%d", tx.ID),
			Description: fmt.Sprintf("%s deposit via %s", tx.Currency, tx.Network),
		})
	})
	metrics.Op("crypto_deposit_approve", err)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "加密货币充值已入账",
		zap.Int64("admin_id", adminID),
		zap.Int64("crypto_tx_id", tx.ID),
		zap.Int64("owner_id", tx.OwnerID),
		zap.String("amount", credit.String()),
	)
	return s.store.GetCryptoTx(ctx, tx.ID)
}

func (s *Service) RejectDeposit(ctx context.Context, adminID, cryptoTxID int64) (*domain.CryptoTransaction, error) {
	tx, err := s.store.GetCryptoTx(ctx, cryptoTxID)
	if err != nil {
		return nil, err
	}
	if tx.Type != domain.CryptoTxDeposit {
		return nil, domain.ErrValidation.WithMsg("crypto transaction %d is not a deposit", cryptoTxID)
	}
	moved, err := s.store.TransitionCryptoTx(ctx, tx.ID, domain.CryptoTxPendingApproval, domain.CryptoTxRejected, adminID, s.now())
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrInvalidTransition.WithMsg("crypto transaction %d is not pending approval", tx.ID)
	}
	logger.Warn(ctx, "加密货币充值被拒绝", zap.Int64("admin_id", adminID), zap.Int64("crypto_tx_id", tx.ID))
	return s.store.GetCryptoTx(ctx, tx.ID)
}
