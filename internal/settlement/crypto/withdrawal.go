package crypto

import (
	"context"
	"fmt"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"bountyhub.com/pkg/secure"
	"go.uber.org/zap"
)

type WithdrawalRequest struct {
	UserID  int64
	Amount  domain.Money
	Address string
	Network domain.Network
	IP      string
}

// CreateCryptoWithdrawal 研究员提现申请
// 同一用户的 "检查 + 落单" 串行执行；落单后状态固定为 pending，余额在审核通过时才扣
func (s *Service) CreateCryptoWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.CryptoWithdrawal, error) {
	debit, err := s.ledgerAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	network := domain.NormalizeNetwork(string(req.Network))
	addr, err := ValidateAddress(req.Address, network)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wallet, err := s.store.GetWallet(ctx, domain.OwnerResearcher, req.UserID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < debit.Amount {
		return nil, domain.ErrInsufficientBalance.WithMsg("balance %s below %s", wallet.Available(), debit)
	}

	verdict, err := s.guard.CheckWithdrawal(ctx, req.UserID, debit, req.IP)
	if err != nil {
		return nil, err
	}
	if verdict.RateLimited {
		return nil, domain.ErrRateLimitExceeded.WithMsg("withdrawal rate limit exceeded")
	}
	if verdict.Blocked {
		return nil, domain.ErrWithdrawalBlocked.WithMsg("WithdrawalBlocked: %s", verdict.Reason)
	}

	ciphertext, err := s.cipher.Encrypt(addr)
	if err != nil {
		return nil, err
	}
	asset := req.Amount.Currency
	if asset == s.cfg.Currency {
		asset = s.cfg.DefaultAsset
	}
	w := &domain.CryptoWithdrawal{
		UserID:        req.UserID,
		Amount:        debit.Amount,
		Currency:      asset,
		WalletAddress: ciphertext,
		AddressMasked: secure.Mask(addr),
		Network:       network,
		Status:        domain.WithdrawalPending,
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateWithdrawal(txCtx, w); err != nil {
			return err
		}
		return s.store.CreateCryptoTx(txCtx, &domain.CryptoTransaction{
			OwnerType:    domain.OwnerResearcher,
			OwnerID:      req.UserID,
			Type:         domain.CryptoTxWithdrawal,
			Amount:       w.Amount,
			Currency:     w.Currency,
			Network:      network,
			Status:       domain.CryptoTxPendingApproval,
			WithdrawalID: &w.ID,
		})
	})
	metrics.Op("crypto_withdrawal_create", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "提现申请已创建",
		zap.Int64("user_id", req.UserID),
		zap.Int64("withdrawal_id", w.ID),
		zap.String("amount", debit.String()),
		zap.String("network", string(network)),
		zap.String("address", w.AddressMasked),
	)
	return w, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, userID int64, page, limit int) ([]domain.CryptoWithdrawal, error) {
	return s.store.ListWithdrawals(ctx, userID, page, limit)
}

// CancelWithdrawal 用户自己撤回，只能撤 pending 的
func (s *Service) CancelWithdrawal(ctx context.Context, userID, withdrawalID int64) (*domain.CryptoWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, domain.ErrNotAuthorized.WithMsg("withdrawal %d belongs to another user", withdrawalID)
	}
	err = s.store.Transaction(ctx, func(txCtx context.Context) error {
		moved, err := s.store.TransitionWithdrawal(txCtx, withdrawalID, domain.WithdrawalPending, domain.WithdrawalCancelled, domain.WithdrawalUpdate{At: s.now()})
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition.WithMsg("withdrawal %d is %s", withdrawalID, w.Status)
		}
		_, err = s.store.TransitionWithdrawalTx(txCtx, withdrawalID, domain.CryptoTxPendingApproval, domain.CryptoTxRejected, 0, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "提现已撤回", zap.Int64("user_id", userID), zap.Int64("withdrawal_id", withdrawalID))
	return s.store.GetWithdrawal(ctx, withdrawalID)
}

func withdrawalRef(id int64) string { return fmt.Sprintf("crypto_withdrawal:%d", id) }
