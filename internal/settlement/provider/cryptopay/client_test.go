package cryptopay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "cp_secret"

func TestSign_Deterministic(t *testing.T) {
	a := Sign(secret, "1700000000000", "n1", []byte(`{"a":1}`))
	b := Sign(secret, "1700000000000", "n1", []byte(`{"a":1}`))
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.NotEqual(t, a, Sign(secret, "1700000000000", "n2", []byte(`{"a":1}`)))
	assert.True(t, verify(secret, "1700000000000", "n1", []byte(`{"a":1}`), a))
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, nonce := r.Header.Get("X-Pay-Timestamp"), r.Header.Get("X-Pay-Nonce")
		assert.Equal(t, "/v2/order", r.URL.Path)
		assert.Equal(t, "SN-1", r.Header.Get("X-Pay-Certificate-SN"))
		assert.Equal(t, Sign(secret, ts, nonce, body), r.Header.Get("X-Pay-Signature"))
		assert.Contains(t, string(body), `"orderAmount":"25.00"`)
		assert.Contains(t, string(body), `"merchantTradeNo":"m1"`)
		_, _ = w.Write([]byte(`{"status":"SUCCESS","code":"000000","data":{"prepayId":"pp_1","checkoutUrl":"https://pay/x","qrContent":"qr","expireTime":1700003600000}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, SecretKey: secret, CertificateSN: "SN-1"})
	o, err := c.CreateOrder(context.Background(), domain.CryptoOrderRequest{
		MerchantOrderID: "m1",
		Amount:          domain.NewMoney(2500, domain.USDT),
		Purpose:         "deposit",
	})
	require.NoError(t, err)
	assert.Equal(t, "pp_1", o.ProviderOrderID)
	assert.Equal(t, "https://pay/x", o.CheckoutURL)
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, int64(1700003600000), o.ExpiresAt.UnixMilli())
}

func TestCreateOrder_BusinessFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAIL","code":"400201","errorMessage":"merchantTradeNo is duplicated"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, SecretKey: secret})
	_, err := c.CreateOrder(context.Background(), domain.CryptoOrderRequest{MerchantOrderID: "m1", Amount: domain.NewMoney(100, domain.USDT)})
	assert.True(t, errors.Is(err, httpx.ErrRejected))
}

func TestParseNotification(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := New(Config{SecretKey: secret})
	c.now = func() time.Time { return now }

	payload := []byte(`{"merchantTradeNo":"m1","prepayId":"pp_1","transactionId":"tx_9","status":"SUCCESS","totalFee":"25.5","currency":"USDT","network":"TRC20"}`)
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	h := domain.WebhookHeaders{Timestamp: ts, Nonce: "abc", Signature: Sign(secret, ts, "abc", payload)}

	n, err := c.ParseNotification(h, payload)
	require.NoError(t, err)
	assert.Equal(t, "m1", n.MerchantOrderID)
	assert.Equal(t, "tx_9", n.TransactionID)
	assert.Equal(t, domain.CryptoNotifySuccess, n.Status)
	assert.Equal(t, domain.NewMoney(2550, domain.USDT), n.Amount)
	assert.Equal(t, domain.Network("trc20"), n.Network)

	stale := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)
	cases := []struct {
		name string
		h    domain.WebhookHeaders
		body []byte
	}{
		{"bad signature", domain.WebhookHeaders{Timestamp: ts, Nonce: "abc", Signature: "00"}, payload},
		{"tampered body", h, []byte(`{"merchantTradeNo":"m2"}`)},
		{"stale", domain.WebhookHeaders{Timestamp: stale, Nonce: "abc", Signature: Sign(secret, stale, "abc", payload)}, payload},
		{"missing headers", domain.WebhookHeaders{}, payload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ParseNotification(tc.h, tc.body)
			assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
		})
	}
}
