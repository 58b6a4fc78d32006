package domain

import (
	"context"
	"time"
)

// 对外部三方的抽象，实现放在 provider 包

type FiatIntentRequest struct {
	Amount         Money
	Purpose        string
	CustomerRef    string
	IdempotencyKey string
}

type FiatIntent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	Amount         Money
	LatestChargeID string
	FailureReason  string
}

type FiatEventType string

const (
	FiatEventSucceeded FiatEventType = "payment_intent.succeeded"
	FiatEventFailed    FiatEventType = "payment_intent.payment_failed"
	FiatEventCanceled  FiatEventType = "payment_intent.canceled"
)

type FiatEvent struct {
	ID       string
	Type     FiatEventType
	IntentID string
	Reason   string
}

type FiatProvider interface {
	CreateIntent(ctx context.Context, req FiatIntentRequest) (*FiatIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*FiatIntent, error)
	// ParseWebhook 验签失败返回 ErrInvalidSignature
	ParseWebhook(payload []byte, signatureHeader string) (*FiatEvent, error)
}

// PayoutOrder 交给打款通道的指令
type PayoutOrder struct {
	PayoutID     int64
	ResearcherID int64
	Amount       Money
	Method       MethodType
	Details      map[string]string
	// Attempt 第几次尝试，和 PayoutID 一起组成幂等键
	Attempt      int
}

// PayoutRail 按收款方式选择的打款通道
type PayoutRail interface {
	Send(ctx context.Context, order PayoutOrder) (externalID string, err error)
}

type CryptoOrderRequest struct {
	MerchantOrderID string
	Amount          Money
	Purpose         string
	ExpireAt        time.Time
}

type CryptoOrder struct {
	ProviderOrderID string
	CheckoutURL     string
	QRContent       string
	ExpiresAt       *time.Time
}

type CryptoNotifyStatus string

const (
	CryptoNotifySuccess CryptoNotifyStatus = "SUCCESS"
	CryptoNotifyFailed  CryptoNotifyStatus = "FAILED"
	CryptoNotifyExpired CryptoNotifyStatus = "EXPIRED"
)

type CryptoNotification struct {
	MerchantOrderID string
	ProviderOrderID string
	TransactionID   string
	Status          CryptoNotifyStatus
	Amount          Money
	Network         Network
}

// WebhookHeaders 加密货币收银台回调里参与验签的头
type WebhookHeaders struct {
	Timestamp string
	Nonce     string
	Signature string
}

type CryptoPayProvider interface {
	CreateOrder(ctx context.Context, req CryptoOrderRequest) (*CryptoOrder, error)
	// ParseNotification 验签失败返回 ErrInvalidSignature
	ParseNotification(h WebhookHeaders, payload []byte) (*CryptoNotification, error)
}

type NoticeKind string

const (
	NoticePayoutCompleted    NoticeKind = "payout.completed"
	NoticePayoutFailed       NoticeKind = "payout.failed"
	NoticeWithdrawalRejected NoticeKind = "withdrawal.rejected"
	NoticeWithdrawalApproved NoticeKind = "withdrawal.approved"
	NoticeDisputeResolved    NoticeKind = "dispute.resolved"
)

type Notice struct {
	Kind      NoticeKind        `json:"kind"`
	UserID    int64             `json:"user_id"`
	Subject   string            `json:"subject"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier 通知失败只记日志，不影响结算结果
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}
