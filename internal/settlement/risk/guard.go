package risk

import (
	"context"
	"fmt"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/metrics"
	"go.uber.org/zap"
)

// History 风控需要的历史统计，由账本仓储实现
type History interface {
	CountLargePayoutsSince(ctx context.Context, researcherID, minAmount int64, since time.Time) (int64, error)
	CountWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	SumWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// Config 金额单位均为分
// PayoutReviewThreshold 单笔超过即人工复核，LargePayoutThreshold 是 "大额" 打款的下限
type Config struct {
	PayoutReviewThreshold int64           `mapstructure:"payout_review_threshold"`
	LargePayoutThreshold  int64           `mapstructure:"large_payout_threshold"`
	MaxLargePayoutsPerDay int64           `mapstructure:"max_large_payouts_per_day"`
	WithdrawalSingleLimit int64           `mapstructure:"withdrawal_single_limit"`
	WithdrawalDailyLimit  int64           `mapstructure:"withdrawal_daily_limit"`
	MaxWithdrawalsPerDay  int64           `mapstructure:"max_withdrawals_per_day"`
	Rules                 map[Action]Rule `mapstructure:"rules"`
}

func DefaultConfig() Config {
	return Config{
		PayoutReviewThreshold: 500000,
		LargePayoutThreshold:  100000,
		MaxLargePayoutsPerDay: 3,
		WithdrawalSingleLimit: 500000,
		WithdrawalDailyLimit:  1000000,
		MaxWithdrawalsPerDay:  5,
		Rules: map[Action]Rule{
			ActionPayoutRequest:    {Limit: 5, Window: time.Hour},
			ActionCryptoWithdrawal: {Limit: 10, Window: time.Hour},
			ActionPaymentIntent:    {Limit: 10, Window: time.Hour},
		},
	}
}

// Verdict 风控结论，只做建议，不改任何资金状态
type Verdict struct {
	Blocked     bool
	RateLimited bool
	Review      bool
	Reason      string
}

func allow() Verdict { return Verdict{} }

func block(reason string) Verdict { return Verdict{Blocked: true, Reason: reason} }

type Guard struct {
	cfg     Config
	limiter Limiter
	history History
	now     func() time.Time
}

func NewGuard(cfg Config, limiter Limiter, history History) *Guard {
	def := DefaultConfig()
	if cfg.Rules == nil {
		cfg.Rules = def.Rules
	}
	return &Guard{cfg: cfg, limiter: limiter, history: history, now: time.Now}
}

// AllowAction 对 (actor, ip, action) 做滑动窗口限流，超限返回 ErrRateLimitExceeded
func (g *Guard) AllowAction(ctx context.Context, action Action, actor int64, ip string) error {
	rule, ok := g.cfg.Rules[action]
	if !ok || rule.Limit <= 0 {
		return nil
	}
	allowed, err := g.limiter.Allow(ctx, limitKey(action, actor, ip), rule.Limit, rule.Window)
	if err != nil {
		// 计数存储不可用时放行，由后续金额类规则兜底
		logger.Error(ctx, "风控限流计数失败", zap.String("action", string(action)), zap.Error(err))
		return nil
	}
	if !allowed {
		metrics.RateLimitBlockTotal.WithLabelValues("risk", string(action), "window").Inc()
		return domain.ErrRateLimitExceeded.WithMsg("%s limit of %d per %s exceeded", action, rule.Limit, rule.Window)
	}
	return nil
}

// CheckPayout 研究员发起打款前的检查
func (g *Guard) CheckPayout(ctx context.Context, researcherID int64, amount domain.Money, ip string) (Verdict, error) {
	if err := g.AllowAction(ctx, ActionPayoutRequest, researcherID, ip); err != nil {
		return g.record(ctx, "payout", researcherID, Verdict{Blocked: true, RateLimited: true, Reason: "rate limit exceeded"}), nil
	}

	if g.cfg.MaxLargePayoutsPerDay > 0 && amount.Amount >= g.cfg.LargePayoutThreshold {
		n, err := g.history.CountLargePayoutsSince(ctx, researcherID, g.cfg.LargePayoutThreshold, g.now().Add(-24*time.Hour))
		if err != nil {
			return Verdict{}, err
		}
		if n >= g.cfg.MaxLargePayoutsPerDay {
			return g.record(ctx, "payout", researcherID, block(fmt.Sprintf("too many large payouts in 24h (%d)", n))), nil
		}
	}

	if g.cfg.PayoutReviewThreshold > 0 && amount.Amount > g.cfg.PayoutReviewThreshold {
		return g.record(ctx, "payout", researcherID, Verdict{Review: true, Reason: "amount exceeds review threshold"}), nil
	}
	return allow(), nil
}

// CheckWithdrawal 加密货币提现检查，任一规则命中即拦截
func (g *Guard) CheckWithdrawal(ctx context.Context, userID int64, amount domain.Money, ip string) (Verdict, error) {
	if err := g.AllowAction(ctx, ActionCryptoWithdrawal, userID, ip); err != nil {
		return g.record(ctx, "withdrawal", userID, Verdict{Blocked: true, RateLimited: true, Reason: "rate limit exceeded"}), nil
	}

	if g.cfg.WithdrawalSingleLimit > 0 && amount.Amount > g.cfg.WithdrawalSingleLimit {
		return g.record(ctx, "withdrawal", userID, block("amount exceeds single withdrawal limit")), nil
	}

	since := g.now().Add(-24 * time.Hour)
	if g.cfg.MaxWithdrawalsPerDay > 0 {
		n, err := g.history.CountWithdrawalsSince(ctx, userID, since)
		if err != nil {
			return Verdict{}, err
		}
		if n >= g.cfg.MaxWithdrawalsPerDay {
			return g.record(ctx, "withdrawal", userID, block("too many withdrawals in 24h")), nil
		}
	}

	if g.cfg.WithdrawalDailyLimit > 0 {
		sum, err := g.history.SumWithdrawalsSince(ctx, userID, since)
		if err != nil {
			return Verdict{}, err
		}
		if sum+amount.Amount > g.cfg.WithdrawalDailyLimit {
			return g.record(ctx, "withdrawal", userID, block("daily withdrawal limit exceeded")), nil
		}
	}
	return allow(), nil
}

func (g *Guard) record(ctx context.Context, check string, userID int64, v Verdict) Verdict {
	reason := v.Reason
	if v.RateLimited {
		reason = "rate_limit"
	}
	metrics.FraudBlockTotal.WithLabelValues(check, reason).Inc()
	logger.Warn(ctx, "风控命中",
		zap.String("check", check),
		zap.Int64("user_id", userID),
		zap.Bool("blocked", v.Blocked),
		zap.Bool("review", v.Review),
		zap.String("reason", v.Reason),
	)
	return v
}
