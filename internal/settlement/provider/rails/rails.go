// Package rails 打款通道：按收款方式分发到对应的三方
package rails

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/httpx"
	"bountyhub.com/pkg/ratelimit"
	"github.com/segmentio/encoding/json"
)

type Config struct {
	Name    string         `mapstructure:"name"`
	BaseURL string         `mapstructure:"base_url"`
	APIKey  string         `mapstructure:"api_key"`
	Timeout time.Duration  `mapstructure:"timeout"`
	Breaker ratelimit.Rule `mapstructure:"breaker"`
}

// Dispatcher 实现 domain.PayoutRail
type Dispatcher struct {
	rails map[domain.MethodType]domain.PayoutRail
}

func NewDispatcher(rails map[domain.MethodType]domain.PayoutRail) *Dispatcher {
	return &Dispatcher{rails: rails}
}

func (d *Dispatcher) Send(ctx context.Context, order domain.PayoutOrder) (string, error) {
	r, ok := d.rails[order.Method]
	if !ok {
		return "", domain.ErrValidation.WithMsg("no payout rail for method %q", order.Method)
	}
	return r.Send(ctx, order)
}

// HTTPRail 通用 HTTP 打款通道（PayPal / 银行 / 链上代付网关接口形状一致）
type HTTPRail struct {
	cfg  Config
	http *httpx.Client
}

func NewHTTPRail(cfg Config) *HTTPRail {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPRail{cfg: cfg, http: httpx.New(cfg.Name, cfg.Timeout, cfg.Breaker)}
}

type transferBody struct {
	Reference string            `json:"reference"`
	Recipient string            `json:"recipient"`
	Amount    string            `json:"amount"`
	Currency  string            `json:"currency"`
	Details   map[string]string `json:"details"`
}

type transferResp struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

func (r *HTTPRail) Send(ctx context.Context, order domain.PayoutOrder) (string, error) {
	body, err := json.Marshal(transferBody{
		Reference: fmt.Sprintf("payout-%d", order.PayoutID),
		Recipient: fmt.Sprintf("researcher-%d", order.ResearcherID),
		Amount:    order.Amount.Decimal().StringFixed(2),
		Currency:  string(order.Amount.Currency),
		Details:   order.Details,
	})
	if err != nil {
		return "", err
	}
	var out transferResp
	err = r.http.Do(ctx, "transfer", httpx.Request{
		Method: http.MethodPost,
		URL:    r.cfg.BaseURL + "/v1/transfers",
		Body:   body,
		Headers: map[string]string{
			"Authorization":   "Bearer " + r.cfg.APIKey,
			"Idempotency-Key": IdempotencyKey(order),
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Status == "failed" || out.ID == "" {
		return "", httpx.ErrRejected.WithCause(fmt.Errorf("transfer failed: %s", out.FailureReason))
	}
	return out.ID, nil
}

// IdempotencyKey 同一次尝试重放不会重复打款；重试会换新 key
func IdempotencyKey(order domain.PayoutOrder) string {
	return fmt.Sprintf("payout-%d-%d", order.PayoutID, order.Attempt)
}
