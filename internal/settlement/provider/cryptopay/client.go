// Package cryptopay 加密货币收银台客户端
package cryptopay

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/httpx"
	"bountyhub.com/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

type Config struct {
	BaseURL          string         `mapstructure:"base_url"`
	APIKey           string         `mapstructure:"api_key"`
	SecretKey        string         `mapstructure:"secret_key"`
	CertificateSN    string         `mapstructure:"certificate_sn"`
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
	return &Client{cfg: cfg, http: httpx.New("cryptopay", cfg.Timeout, cfg.Breaker), now: time.Now}
}

type orderBody struct {
	MerchantTradeNo string `json:"merchantTradeNo"`
	OrderAmount     string `json:"orderAmount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	OrderExpireTime int64  `json:"orderExpireTime,omitempty"`
}

type orderResp struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	ErrorMessage string `json:"errorMessage"`
	Data         struct {
		PrepayID    string `json:"prepayId"`
		CheckoutURL string `json:"checkoutUrl"`
		QRContent   string `json:"qrContent"`
		ExpireTime  int64  `json:"expireTime"`
	} `json:"data"`
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CryptoOrderRequest) (*domain.CryptoOrder, error) {
	ob := orderBody{
		MerchantTradeNo: req.MerchantOrderID,
		OrderAmount:     req.Amount.Decimal().StringFixed(2),
		Currency:        string(req.Amount.Currency),
		Description:     req.Purpose,
	}
	if !req.ExpireAt.IsZero() {
		ob.OrderExpireTime = req.ExpireAt.UnixMilli()
	}
	body, err := json.Marshal(ob)
	if err != nil {
		return nil, err
	}

	var out orderResp
	err = c.http.Do(ctx, "create_order", httpx.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + "/v2/order",
		Body:    body,
		Headers: c.signedHeaders(body),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Status != "SUCCESS" {
		return nil, httpx.ErrRejected.WithCause(fmt.Errorf("create_order: %s %s", out.Code, out.ErrorMessage))
	}

	o := &domain.CryptoOrder{
		ProviderOrderID: out.Data.PrepayID,
		CheckoutURL:     out.Data.CheckoutURL,
		QRContent:       out.Data.QRContent,
	}
	if out.Data.ExpireTime > 0 {
		t := time.UnixMilli(out.Data.ExpireTime).UTC()
		o.ExpiresAt = &t
	}
	return o, nil
}

// 请求和回调共用的签名头
const (
	HeaderTimestamp = "X-Pay-Timestamp"
	HeaderNonce     = "X-Pay-Nonce"
	HeaderCertSN    = "X-Pay-Certificate-SN"
	HeaderSignature = "X-Pay-Signature"
)

func (c *Client) signedHeaders(body []byte) map[string]string {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderNonce:     nonce,
		HeaderCertSN:    c.cfg.CertificateSN,
		HeaderSignature: Sign(c.cfg.SecretKey, ts, nonce, body),
	}
}

type notification struct {
	MerchantTradeNo string `json:"merchantTradeNo"`
	PrepayID        string `json:"prepayId"`
	TransactionID   string `json:"transactionId"`
	Status          string `json:"status"`
	TotalFee        string `json:"totalFee"`
	Currency        string `json:"currency"`
	Network         string `json:"network"`
}

// ParseNotification 时间戳为毫秒
func (c *Client) ParseNotification(h domain.WebhookHeaders, payload []byte) (*domain.CryptoNotification, error) {
	if h.Timestamp == "" || h.Nonce == "" || h.Signature == "" {
		return nil, domain.ErrInvalidSignature.WithMsg("missing signature headers")
	}
	ms, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidSignature.WithMsg("bad timestamp")
	}
	if d := c.now().Sub(time.UnixMilli(ms)); d > c.cfg.WebhookTolerance || d < -c.cfg.WebhookTolerance {
		return nil, domain.ErrInvalidSignature.WithMsg("timestamp outside tolerance")
	}
	if !verify(c.cfg.SecretKey, h.Timestamp, h.Nonce, payload, h.Signature) {
		return nil, domain.ErrInvalidSignature.WithMsg("signature mismatch")
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, domain.ErrValidation.WithMsg("decode notification: %v", err)
	}
	cur, err := domain.ParseCurrency(n.Currency)
	if err != nil {
		return nil, err
	}
	amount, err := domain.MoneyFromDecimal(n.TotalFee, cur)
	if err != nil {
		return nil, err
	}
	return &domain.CryptoNotification{
		MerchantOrderID: n.MerchantTradeNo,
		ProviderOrderID: n.PrepayID,
		TransactionID:   n.TransactionID,
		Status:          domain.CryptoNotifyStatus(strings.ToUpper(n.Status)),
		Amount:          amount,
		Network:         domain.NormalizeNetwork(n.Network),
	}, nil
}
