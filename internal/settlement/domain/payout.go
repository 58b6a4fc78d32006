package domain

import "time"

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
	PayoutCancelled  PayoutStatus = "cancelled"
)

type MethodType string

const (
	MethodPayPal          MethodType = "paypal"
	MethodBankTransfer    MethodType = "bank_transfer"
	MethodCrypto          MethodType = "crypto"
	MethodPlatformBalance MethodType = "platform_balance"
)

func ParseMethodType(s string) (MethodType, error) {
	switch m := MethodType(s); m {
	case MethodPayPal, MethodBankTransfer, MethodCrypto, MethodPlatformBalance:
		return m, nil
	}
	return "", ErrValidation.WithMsg("unsupported payment method type %q", s)
}

// Payout 一次托管释放对应一条打款
type Payout struct {
	ID                    int64        `json:"id"`
	EscrowID              int64        `gorm:"uniqueIndex" json:"escrow_id"`
	SubmissionID          int64        `gorm:"index" json:"submission_id"`
	ResearcherID          int64        `gorm:"index:idx_payout_researcher" json:"researcher_id"`
	Amount                int64        `json:"amount"`
	Currency              Currency     `gorm:"size:8" json:"currency"`
	PaymentMethodID       int64        `json:"payment_method_id"`
	MethodType            MethodType   `gorm:"size:32" json:"method_type"`
	Details               string       `gorm:"type:text" json:"-"` // 加密后的打款参数
	Status                PayoutStatus `gorm:"size:16;index" json:"status"`
	ReviewRequired        bool         `gorm:"default:false" json:"review_required"`
	ExternalTransactionID string       `gorm:"size:128" json:"external_transaction_id,omitempty"`
	FailureReason         string       `gorm:"size:512" json:"failure_reason,omitempty"`
	Attempts              int          `gorm:"default:0" json:"attempts"`
	ProcessedAt           *time.Time   `json:"processed_at,omitempty"`
	CompletedAt           *time.Time   `json:"completed_at,omitempty"`
	CreatedAt             time.Time    `gorm:"index:idx_payout_researcher" json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (p *Payout) Money() Money { return Money{Amount: p.Amount, Currency: p.Currency} }

// PayoutUpdate 状态迁移时一并写入的字段
type PayoutUpdate struct {
	ExternalTransactionID string
	FailureReason         string
	IncAttempts           bool
	ClearReview           bool
	At                    time.Time
}

// PaymentMethod 研究员的收款方式，Details 为加密后的 JSON
type PaymentMethod struct {
	ID        int64      `json:"id"`
	UserID    int64      `gorm:"index" json:"user_id"`
	Type      MethodType `gorm:"size:32" json:"type"`
	Label     string     `gorm:"size:64" json:"label"`
	Details   string     `gorm:"type:text" json:"-"`
	IsDefault bool       `gorm:"default:false" json:"is_default"`
	CreatedAt time.Time  `json:"created_at"`
}
