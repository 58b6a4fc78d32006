package domain

import "time"

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentCanceled  IntentStatus = "canceled"
)

// PaymentIntent 公司法币充值意图
type PaymentIntent struct {
	ID               int64        `json:"id"`
	CompanyID        int64        `gorm:"index" json:"company_id"`
	ProviderIntentID string       `gorm:"uniqueIndex;size:64" json:"provider_intent_id"`
	ClientSecret     string       `gorm:"size:128" json:"client_secret,omitempty"`
	Amount           int64        `json:"amount"`
	Currency         Currency     `gorm:"size:8" json:"currency"`
	Purpose          string       `gorm:"size:64" json:"purpose"`
	Status           IntentStatus `gorm:"size:16;index" json:"status"`
	FailureReason    string       `gorm:"size:255" json:"failure_reason,omitempty"`
	SucceededAt      *time.Time   `json:"succeeded_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (p *PaymentIntent) Money() Money { return Money{Amount: p.Amount, Currency: p.Currency} }

// ProcessedEvent 三方事件去重表
// 所有由三方驱动的资金变动，都先在同一个事务里插入这张表，插入失败说明已经处理过
type ProcessedEvent struct {
	ID         int64     `json:"id"`
	Provider   string    `gorm:"uniqueIndex:idx_event_provider_ext;size:32" json:"provider"`
	ExternalID string    `gorm:"uniqueIndex:idx_event_provider_ext;size:128" json:"external_id"`
	Kind       string    `gorm:"size:32" json:"kind"`
	Reference  string    `gorm:"size:64" json:"reference"`
	CreatedAt  time.Time `json:"created_at"`
}
