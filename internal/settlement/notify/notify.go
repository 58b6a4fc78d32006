// Package notify 结算事件通知：发到 NATS，由通知服务负责邮件/站内信
package notify

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/logger"
	"bountyhub.com/pkg/safe"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

const subjectPrefix = "settlement.notice."

type NatsNotifier struct {
	nc *nats.Conn
}

func NewNatsNotifier(url string, opts ...nats.Option) (*NatsNotifier, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsNotifier{nc: nc}, nil
}

// Notify subject: settlement.notice.<kind>，例如 settlement.notice.payout.completed
func (n *NatsNotifier) Notify(ctx context.Context, notice domain.Notice) error {
	b, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return n.nc.Publish(subjectPrefix+string(notice.Kind), b)
}

func (n *NatsNotifier) Close() error {
	if n.nc != nil {
		n.nc.Drain()
		n.nc.Close()
	}
	return nil
}

// LogNotifier 没配 NATS 时兜底，只写日志
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, notice domain.Notice) error {
	logger.Info(ctx, "notice",
		zap.String("kind", string(notice.Kind)),
		zap.Int64("user_id", notice.UserID),
		zap.String("subject", notice.Subject),
		zap.Any("data", notice.Data),
	)
	return nil
}

// Fire 异步发送，失败只记日志
func Fire(ctx context.Context, n domain.Notifier, notice domain.Notice) {
	if n == nil {
		return
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now().UTC()
	}
	safe.GoCtx(ctx, func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := n.Notify(ctx, notice); err != nil {
			logger.Warn(ctx, "send notice failed",
				zap.String("kind", string(notice.Kind)),
				zap.Int64("user_id", notice.UserID),
				zap.Error(err),
			)
		}
	})
}
