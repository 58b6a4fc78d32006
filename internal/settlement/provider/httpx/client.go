// Package httpx 三方 HTTP 调用的公共部分：JSON 编解码、状态码分类、熔断
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/ratelimit"
	"bountyhub.com/pkg/xerr"
	"github.com/segmentio/encoding/json"
	"google.golang.org/grpc/codes"
)

// ErrRejected 三方明确拒绝 (4xx)，与 domain.ErrProvider 同 reason，但不计入熔断
var ErrRejected = xerr.Define(codes.FailedPrecondition, domain.ErrProvider.Reason, "payment provider rejected the request")

const maxBody = 1 << 20

type Client struct {
	http    *http.Client
	breaker *ratelimit.Manager
}

func New(provider string, timeout time.Duration, rule ratelimit.Rule) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		breaker: ratelimit.NewManager(provider, rule, nil),
	}
}

// Request 一次调用；Body 为已经序列化好的 JSON（签名需要用到原文）
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Do 发请求并把 2xx 响应解到 out；错误统一归为 ErrProvider / ErrRejected
func (c *Client) Do(ctx context.Context, op string, req Request, out any) error {
	var respBody []byte
	err := c.breaker.Execute(op, func() error {
		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return xerr.Wrap(err, codes.Internal, "build request")
		}
		if req.Body != nil {
			hr.Header.Set("Content-Type", "application/json")
		}
		for k, v := range req.Headers {
			hr.Header.Set(k, v)
		}

		resp, err := c.http.Do(hr)
		if err != nil {
			return domain.ErrProvider.WithCause(err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return domain.ErrProvider.WithCause(err)
		}
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return domain.ErrProvider.WithCause(fmt.Errorf("%s: http %d", op, resp.StatusCode))
		case resp.StatusCode >= 400:
			return ErrRejected.WithCause(fmt.Errorf("%s: http %d: %s", op, resp.StatusCode, truncate(respBody, 256)))
		}
		return nil
	})
	if err != nil {
		if _, ok := xerr.As(err); !ok {
			// 熔断打开等非业务错误
			return domain.ErrProvider.WithCause(err)
		}
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.ErrProvider.WithCause(fmt.Errorf("%s: decode response: %v", op, err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
