package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	USD  Currency = "USD"
	EUR  Currency = "EUR"
	GBP  Currency = "GBP"
	USDT Currency = "USDT"
	USDC Currency = "USDC"
	BTC  Currency = "BTC"
	ETH  Currency = "ETH"
)

var currencies = map[Currency]bool{
	USD: true, EUR: true, GBP: true,
	USDT: false, USDC: false, BTC: false, ETH: false,
}

// ParseCurrency 大小写不敏感
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := currencies[c]; !ok {
		return "", ErrValidation.WithMsg("unsupported currency %q", s)
	}
	return c, nil
}

func (c Currency) IsFiat() bool { return currencies[c] }

func (c Currency) IsCrypto() bool {
	fiat, ok := currencies[c]
	return ok && !fiat
}

// Money 金额一律用最小单位（分）存储
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func NewMoney(amount int64, c Currency) Money {
	return Money{Amount: amount, Currency: c}
}

func (m Money) IsPositive() bool { return m.Amount > 0 }

func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch.WithMsg("%s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch.WithMsg("%s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}, nil
}

// Decimal 分 -> 元，只用于展示和对接按小数报价的三方
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}

// MoneyFromDecimal 解析三方回传的小数金额，比如 "100.50"
// 超过两位小数的精度直接拒绝，不做四舍五入
func MoneyFromDecimal(s string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, ErrValidation.WithMsg("invalid amount %q", s)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return Money{}, ErrValidation.WithMsg("amount %q has sub-cent precision", s)
	}
	return Money{Amount: cents.IntPart(), Currency: c}, nil
}
