package domain

import "time"

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowAccount 每个 submission 最多一条
// Amount = PlatformCommission + ResearcherPayout
type EscrowAccount struct {
	ID                 int64        `json:"id"`
	SubmissionID       int64        `gorm:"uniqueIndex" json:"submission_id"`
	CompanyID          int64        `gorm:"index" json:"company_id"`
	ResearcherID       int64        `gorm:"index" json:"researcher_id"`
	Amount             int64        `json:"amount"`
	PlatformCommission int64        `json:"platform_commission"`
	ResearcherPayout   int64        `json:"researcher_payout"`
	CommissionRateBps  int          `json:"commission_rate_bps"`
	Currency           Currency     `gorm:"size:8" json:"currency"`
	Status             EscrowStatus `gorm:"size:16;index:idx_escrow_status_expiry" json:"status"`
	ExpiresAt          time.Time    `gorm:"index:idx_escrow_status_expiry" json:"expires_at"`
	ReleasedAt         *time.Time   `json:"released_at,omitempty"`
	RefundedAt         *time.Time   `json:"refunded_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (e *EscrowAccount) Balanced() bool {
	return e.Amount == e.PlatformCommission+e.ResearcherPayout
}

func (e *EscrowAccount) Expired(now time.Time) bool {
	return e.Status == EscrowHeld && !now.Before(e.ExpiresAt)
}

// Commission 平台抽成审计记录
type Commission struct {
	ID               int64     `json:"id"`
	SubmissionID     int64     `gorm:"uniqueIndex" json:"submission_id"`
	EscrowID         int64     `gorm:"index" json:"escrow_id"`
	TotalAmount      int64     `json:"total_amount"`
	CommissionRate   int       `json:"commission_rate"` // bps
	CommissionAmount int64     `json:"commission_amount"`
	Currency         Currency  `gorm:"size:8" json:"currency"`
	Reversed         bool      `gorm:"default:false" json:"reversed"`
	CreatedAt        time.Time `json:"created_at"`
}
