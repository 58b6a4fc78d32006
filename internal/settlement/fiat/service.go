// Package fiat 法币结算：充值、托管、抽成、打款
package fiat

import (
	"context"
	"fmt"
	"time"

	"bountyhub.com/internal/settlement/commission"
	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/risk"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/secure"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Store interface {
	domain.Transactor
	domain.WalletRepo
	domain.EventRepo
	domain.PaymentIntentRepo
	domain.EscrowRepo
	domain.PayoutRepo
	domain.SubmissionDirectory
}

type RiskGuard interface {
	AllowAction(ctx context.Context, action risk.Action, actor int64, ip string) error
	CheckPayout(ctx context.Context, researcherID int64, amount domain.Money, ip string) (risk.Verdict, error)
}

// TierResolver 公司套餐等级，决定抽成比例；为空时用默认比例
type TierResolver interface {
	TierOf(ctx context.Context, companyID int64) (string, error)
}

type Config struct {
	Currency      domain.Currency `mapstructure:"currency"`
	EscrowTTL     time.Duration   `mapstructure:"escrow_ttl"`
	PayoutTimeout time.Duration   `mapstructure:"payout_timeout"`
}

const providerName = "fiat"

type Service struct {
	cfg        Config
	store      Store
	provider   domain.FiatProvider
	rail       domain.PayoutRail
	calculator *commission.Calculator
	tiers      TierResolver
	guard      RiskGuard
	locker     risk.Locker
	cipher     *secure.Cipher
	notifier   domain.Notifier

	confirmGroup singleflight.Group
	now          func() time.Time
}

type Deps struct {
	Store      Store
	Provider   domain.FiatProvider
	Rail       domain.PayoutRail
	Calculator *commission.Calculator
	Tiers      TierResolver
	Guard      RiskGuard
	Locker     risk.Locker
	Cipher     *secure.Cipher
	Notifier   domain.Notifier
}

func NewService(cfg Config, d Deps) *Service {
	if cfg.Currency == "" {
		cfg.Currency = domain.USD
	}
	if cfg.EscrowTTL <= 0 {
		cfg.EscrowTTL = 30 * 24 * time.Hour
	}
	if cfg.PayoutTimeout <= 0 {
		cfg.PayoutTimeout = 30 * time.Second
	}
	if d.Calculator == nil {
		d.Calculator = commission.NewCalculator(commission.DefaultRateBps, nil)
	}
	if d.Locker == nil {
		d.Locker = risk.NewLocalLocker()
	}
	return &Service{
		cfg:        cfg,
		store:      d.Store,
		provider:   d.Provider,
		rail:       d.Rail,
		calculator: d.Calculator,
		tiers:      d.Tiers,
		guard:      d.Guard,
		locker:     d.Locker,
		cipher:     d.Cipher,
		notifier:   d.Notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// checkAmount 金额必须为正且是钱包本位币
func (s *Service) checkAmount(m domain.Money) error {
	if !m.IsPositive() {
		return domain.ErrValidation.WithMsg("amount must be positive")
	}
	if m.Currency != s.cfg.Currency {
		return domain.ErrCurrencyMismatch.WithMsg("expected %s, got %s", s.cfg.Currency, m.Currency)
	}
	return nil
}

func (s *Service) GetWallet(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, error) {
	return s.store.GetWallet(ctx, owner, ownerID)
}

func (s *Service) ListTransactions(ctx context.Context, owner domain.OwnerType, ownerID int64, page, limit int) ([]domain.Transaction, error) {
	return s.store.ListTransactions(ctx, owner, ownerID, page, limit)
}

func (s *Service) lockUser(ctx context.Context, scope string, userID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("lock:%s:%d", scope, userID))
	if err != nil {
		logger.Warn(ctx, "获取用户锁失败", zap.String("scope", scope), zap.Int64("user_id", userID), zap.Error(err))
		return nil, domain.ErrConflict.WithMsg("another %s request is in progress", scope).WithCause(err)
	}
	return unlock, nil
}
