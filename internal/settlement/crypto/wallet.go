package crypto

import (
	"context"
	"strings"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/secure"
	"go.uber.org/zap"
)

// AddUserWallet 登记提现地址
// 地址加密存储，盲索引做全平台查重；登记后走一遍 unverified -> challenge_sent -> verified/failed
func (s *Service) AddUserWallet(ctx context.Context, userID int64, walletType, address string, network domain.Network) (*domain.CryptoWallet, error) {
	network = domain.NormalizeNetwork(string(network))
	addr, err := ValidateAddress(address, network)
	if err != nil {
		return nil, err
	}
	ciphertext, err := s.cipher.Encrypt(addr)
	if err != nil {
		return nil, err
	}

	w := &domain.CryptoWallet{
		UserID:             userID,
		WalletType:         strings.TrimSpace(walletType),
		WalletAddress:      ciphertext,
		AddressIndex:       s.cipher.BlindIndex(indexForm(addr, network)),
		AddressMasked:      secure.Mask(addr),
		Network:            network,
		VerificationStatus: domain.VerificationUnverified,
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	logger.Info(ctx, "登记提现地址",
		zap.Int64("user_id", userID),
		zap.Int64("wallet_id", w.ID),
		zap.String("network", string(network)),
		zap.String("address", w.AddressMasked),
	)

	if err := s.verify(ctx, w); err != nil {
		// 校验失败不影响登记结果，地址保持当前状态等待重试
		logger.Warn(ctx, "地址校验失败", zap.Int64("wallet_id", w.ID), zap.Error(err))
	}
	return w, nil
}

func (s *Service) verify(ctx context.Context, w *domain.CryptoWallet) error {
	if err := s.verifier.Challenge(ctx, w); err != nil {
		return err
	}
	if err := s.moveVerification(ctx, w, domain.VerificationChallengeSent); err != nil {
		return err
	}
	ok, err := s.verifier.Verify(ctx, w)
	if err != nil {
		return err
	}
	to := domain.VerificationFailed
	if ok {
		to = domain.VerificationVerified
	}
	return s.moveVerification(ctx, w, to)
}

func (s *Service) moveVerification(ctx context.Context, w *domain.CryptoWallet, to domain.VerificationStatus) error {
	if !w.VerificationStatus.CanTransition(to) {
		return domain.ErrInvalidTransition.WithMsg("wallet verification %s -> %s", w.VerificationStatus, to)
	}
	moved, err := s.store.TransitionWalletVerification(ctx, w.ID, w.VerificationStatus, to, s.now())
	if err != nil {
		return err
	}
	if !moved {
		return domain.ErrConflict.WithMsg("wallet %d verification changed concurrently", w.ID)
	}
	w.VerificationStatus = to
	w.IsVerified = to == domain.VerificationVerified
	return nil
}

func (s *Service) ListUserWallets(ctx context.Context, userID int64) ([]domain.CryptoWallet, error) {
	return s.store.ListWallets(ctx, userID)
}

// indexForm EVM 地址大小写不敏感，查重前统一小写
func indexForm(addr string, network domain.Network) string {
	if network.IsEVM() {
		return "evm:" + strings.ToLower(addr)
	}
	return string(network) + ":" + addr
}
