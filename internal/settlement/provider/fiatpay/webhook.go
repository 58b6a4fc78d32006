package fiatpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"github.com/segmentio/encoding/json"
)

// SignatureHeader 回调签名所在的请求头
const SignatureHeader = "Fiatpay-Signature"

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhook 签名头格式: t=<unix>,v1=<hex(hmac_sha256(secret, t + "." + payload))>
func (c *Client) ParseWebhook(payload []byte, signatureHeader string) (*domain.FiatEvent, error) {
	ts, sigs := parseSignatureHeader(signatureHeader)
	if ts == 0 || len(sigs) == 0 {
		return nil, domain.ErrInvalidSignature.WithMsg("malformed signature header")
	}
	if d := c.now().Sub(time.Unix(ts, 0)); d > c.cfg.WebhookTolerance || d < -c.cfg.WebhookTolerance {
		return nil, domain.ErrInvalidSignature.WithMsg("timestamp outside tolerance")
	}

	expected := Sign(c.cfg.WebhookSecret, ts, payload)
	matched := false
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			matched = true
		}
	}
	if !matched {
		return nil, domain.ErrInvalidSignature.WithMsg("signature mismatch")
	}

	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.ErrValidation.WithMsg("decode webhook: %v", err)
	}
	out := &domain.FiatEvent{
		ID:       ev.ID,
		Type:     domain.FiatEventType(ev.Type),
		IntentID: ev.Data.Object.ID,
	}
	if ev.Data.Object.LastPaymentError != nil {
		out.Reason = ev.Data.Object.LastPaymentError.Message
	}
	return out, nil
}

// Sign 生成 v1 签名，测试和本地联调也用它
func Sign(secret string, ts int64, payload []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte("."))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

func parseSignatureHeader(h string) (int64, []string) {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(h, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sigs = append(sigs, v)
		}
	}
	return ts, sigs
}
