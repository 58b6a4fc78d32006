// Package fiatpay 卡支付服务商客户端：创建/查询支付意图，校验 webhook
package fiatpay

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/httpx"
	"bountyhub.com/pkg/ratelimit"
	"github.com/segmentio/encoding/json"
)

type Config struct {
	BaseURL          string         `mapstructure:"base_url"`
	SecretKey        string         `mapstructure:"secret_key"`
	WebhookSecret    string         `mapstructure:"webhook_secret"`
	Timeout          time.Duration  `mapstructure:"timeout"`
	WebhookTolerance time.Duration  `mapstructure:"webhook_tolerance"`
	Breaker          ratelimit.Rule `mapstructure:"breaker"`
}

type Client struct {
	cfg  Config
	http *httpx.Client
	now  func() time.Time
}

func New(cfg Config) *Client {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = 5 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpx.New("fiatpay", cfg.Timeout, cfg.Breaker), now: time.Now}
}

type intentBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type intentResp struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LatestCharge     string `json:"latest_charge"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (c *Client) CreateIntent(ctx context.Context, req domain.FiatIntentRequest) (*domain.FiatIntent, error) {
	body, err := json.Marshal(intentBody{
		Amount:   req.Amount.Amount,
		Currency: strings.ToLower(string(req.Amount.Currency)),
		Metadata: map[string]string{"purpose": req.Purpose, "customer": req.CustomerRef},
	})
	if err != nil {
		return nil, err
	}
	var out intentResp
	err = c.http.Do(ctx, "create_intent", httpx.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + "/v1/payment_intents",
		Body:    body,
		Headers: c.headers(req.IdempotencyKey),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, id string) (*domain.FiatIntent, error) {
	var out intentResp
	err := c.http.Do(ctx, "retrieve_intent", httpx.Request{
		Method:  http.MethodGet,
		URL:     c.cfg.BaseURL + "/v1/payment_intents/" + url.PathEscape(id),
		Headers: c.headers(""),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) headers(idempotencyKey string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + c.cfg.SecretKey}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}

func (r *intentResp) toDomain() *domain.FiatIntent {
	fi := &domain.FiatIntent{
		ID:             r.ID,
		ClientSecret:   r.ClientSecret,
		Status:         mapStatus(r.Status, r.LastPaymentError != nil),
		Amount:         domain.NewMoney(r.Amount, domain.Currency(strings.ToUpper(r.Currency))),
		LatestChargeID: r.LatestCharge,
	}
	if r.LastPaymentError != nil {
		fi.FailureReason = r.LastPaymentError.Message
	}
	return fi
}

// mapStatus requires_payment_method 带错误信息说明扣款失败，否则只是还没付
func mapStatus(s string, hasError bool) domain.IntentStatus {
	switch s {
	case "succeeded":
		return domain.IntentSucceeded
	case "canceled":
		return domain.IntentCanceled
	case "requires_payment_method":
		if hasError {
			return domain.IntentFailed
		}
	}
	return domain.IntentPending
}
