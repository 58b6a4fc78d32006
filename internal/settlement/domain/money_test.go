package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	a := NewMoney(1050, USD)
	b := NewMoney(25, USD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1075), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1025), diff.Amount)

	_, err = a.Add(NewMoney(1, EUR))
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))

	assert.Equal(t, "10.50 USD", a.String())
}

func TestMoneyFromDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100.50", 10050, false},
		{"0.01", 1, false},
		{"5000", 500000, false},
		{"1.005", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := MoneyFromDecimal(tt.in, USDT)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Amount)
			assert.Equal(t, USDT, m.Currency)
		})
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usdt")
	require.NoError(t, err)
	assert.Equal(t, USDT, c)
	assert.True(t, c.IsCrypto())
	assert.True(t, USD.IsFiat())

	_, err = ParseCurrency("DOGE")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestVerificationTransitions(t *testing.T) {
	assert.True(t, VerificationUnverified.CanTransition(VerificationChallengeSent))
	assert.True(t, VerificationChallengeSent.CanTransition(VerificationVerified))
	assert.True(t, VerificationChallengeSent.CanTransition(VerificationFailed))
	assert.False(t, VerificationUnverified.CanTransition(VerificationVerified))
	assert.False(t, VerificationVerified.CanTransition(VerificationFailed))
}

func TestEscrowHelpers(t *testing.T) {
	now := time.Now()
	e := &EscrowAccount{Amount: 10000, PlatformCommission: 1500, ResearcherPayout: 8500, Status: EscrowHeld, ExpiresAt: now}
	assert.True(t, e.Balanced())
	assert.True(t, e.Expired(now))
	assert.False(t, e.Expired(now.Add(-time.Second)))

	e.Status = EscrowReleased
	assert.False(t, e.Expired(now.Add(time.Hour)))
}
