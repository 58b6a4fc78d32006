package commission

import (
	"context"
	"strconv"

	"bountyhub.com/internal/settlement/domain"
)

const (
	// BasisPoints 10000 bps = 100%
	BasisPoints = 10000
	// DefaultRateBps 平台默认抽成 15%
	DefaultRateBps = 1500
)

// Calculate commission = floor(amount * rate / 10000)，payout = amount - commission
// 拆成商和余数分别乘，避免大额时 int64 溢出
func Calculate(amount int64, rateBps int) (commissionAmt, payout int64, err error) {
	if amount < 0 {
		return 0, 0, domain.ErrValidation.WithMsg("amount must not be negative: %d", amount)
	}
	if rateBps < 0 || rateBps > BasisPoints {
		return 0, 0, domain.ErrValidation.WithMsg("commission rate out of range: %d bps", rateBps)
	}
	r := int64(rateBps)
	q, rem := amount/BasisPoints, amount%BasisPoints
	commissionAmt = q*r + rem*r/BasisPoints
	return commissionAmt, amount - commissionAmt, nil
}

// Calculator 按计划等级取费率，未配置的等级走默认费率
type Calculator struct {
	DefaultRateBps int
	Tiers          map[string]int
}

func NewCalculator(defaultBps int, tiers map[string]int) *Calculator {
	if defaultBps <= 0 {
		defaultBps = DefaultRateBps
	}
	return &Calculator{DefaultRateBps: defaultBps, Tiers: tiers}
}

func (c *Calculator) RateFor(tier string) int {
	if r, ok := c.Tiers[tier]; ok {
		return r
	}
	return c.DefaultRateBps
}

// Split 返回 (平台抽成, 研究员实得, 费率)
func (c *Calculator) Split(m domain.Money, tier string) (commissionAmt, payout domain.Money, rateBps int, err error) {
	rateBps = c.RateFor(tier)
	ca, pa, err := Calculate(m.Amount, rateBps)
	if err != nil {
		return domain.Money{}, domain.Money{}, 0, err
	}
	return domain.NewMoney(ca, m.Currency), domain.NewMoney(pa, m.Currency), rateBps, nil
}

// StaticTiers 公司 id -> 套餐等级，来自配置；未配置的公司走默认费率
type StaticTiers map[string]string

func (t StaticTiers) TierOf(_ context.Context, companyID int64) (string, error) {
	return t[strconv.FormatInt(companyID, 10)], nil
}
