// Package crypto 加密货币结算：托管收银台充值、地址登记、人工审核提现
package crypto

import (
	"context"
	"fmt"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/secure"
	"go.uber.org/zap"
)

// Store 服务依赖的账本能力
type Store interface {
	domain.Transactor
	domain.WalletRepo
	domain.EventRepo
	domain.CryptoRepo
}

// RiskGuard 提现前风控 + 下单限流
type RiskGuard interface {
	AllowAction(ctx context.Context, action risk.Action, actor int64, ip string) error
	CheckWithdrawal(ctx context.Context, userID int64, amount domain.Money, ip string) (risk.Verdict, error)
}

// Verifier 地址归属校验，默认实现直接通过
type Verifier interface {
	Challenge(ctx context.Context, w *domain.CryptoWallet) error
	Verify(ctx context.Context, w *domain.CryptoWallet) (bool, error)
}

type AutoVerifier struct{}

func (AutoVerifier) Challenge(context.Context, *domain.CryptoWallet) error { return nil }

func (AutoVerifier) Verify(context.Context, *domain.CryptoWallet) (bool, error) { return true, nil }

type Config struct {
	// Currency 钱包本位币；稳定币按面值 1:1 记账
	Currency domain.Currency `mapstructure:"currency"`
	// OrderTTL 收银台订单有效期
	OrderTTL time.Duration `mapstructure:"order_ttl"`
	// DefaultAsset 提现未指定币种时使用
	DefaultAsset domain.Currency `mapstructure:"default_asset"`
}

const providerName = "cryptopay"

type Service struct {
	cfg      Config
	store    Store
	provider domain.CryptoPayProvider
	guard    RiskGuard
	locker   risk.Locker
	cipher   *secure.Cipher
	verifier Verifier
	notifier domain.Notifier
	now      func() time.Time
}

type Deps struct {
	Store    Store
	Provider domain.CryptoPayProvider
	Guard    RiskGuard
	Locker   risk.Locker
	Cipher   *secure.Cipher
	Verifier Verifier
	Notifier domain.Notifier
}

func NewService(cfg Config, d Deps) *Service {
	if cfg.Currency == "" {
		cfg.Currency = domain.USD
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = time.Hour
	}
	if cfg.DefaultAsset == "" {
		cfg.DefaultAsset = domain.USDT
	}
	if d.Verifier == nil {
		d.Verifier = AutoVerifier{}
	}
	if d.Locker == nil {
		d.Locker = risk.NewLocalLocker()
	}
	return &Service{
		cfg:      cfg,
		store:    d.Store,
		provider: d.Provider,
		guard:    d.Guard,
		locker:   d.Locker,
		cipher:   d.Cipher,
		verifier: d.Verifier,
		notifier: d.Notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ledgerAmount 把请求金额换算成钱包本位币的分
// 只接受本位币和稳定币，其它币种没有汇率来源
func (s *Service) ledgerAmount(m domain.Money) (domain.Money, error) {
	if !m.IsPositive() {
		return domain.Money{}, domain.ErrValidation.WithMsg("amount must be positive")
	}
	switch m.Currency {
	case s.cfg.Currency, domain.USDT, domain.USDC:
		return domain.NewMoney(m.Amount, s.cfg.Currency), nil
	}
	return domain.Money{}, domain.ErrValidation.WithMsg("currency %s not supported for crypto settlement", m.Currency)
}

func (s *Service) lockUser(ctx context.Context, userID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("lock:crypto:withdraw:%d", userID))
	if err != nil {
		logger.Warn(ctx, "获取用户锁失败", zap.Int64("user_id", userID), zap.Error(err))
		return nil, domain.ErrConflict.WithMsg("another withdrawal request is in progress").WithCause(err)
	}
	return unlock, nil
}
