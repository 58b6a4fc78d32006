package domain

import "time"

type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeRejected    DisputeStatus = "rejected"
)

func (s DisputeStatus) Terminal() bool {
	return s == DisputeResolved || s == DisputeRejected
}

type DisputeType string

const (
	DisputePaymentAmount DisputeType = "payment_amount"
	DisputePaymentDelay  DisputeType = "payment_delay"
	DisputeCommission    DisputeType = "commission"
	DisputePaymentMethod DisputeType = "payment_method"
	DisputeOther         DisputeType = "other"
)

func ParseDisputeType(s string) (DisputeType, error) {
	switch t := DisputeType(s); t {
	case DisputePaymentAmount, DisputePaymentDelay, DisputeCommission, DisputePaymentMethod, DisputeOther:
		return t, nil
	}
	return "", ErrValidation.WithMsg("unknown dispute type %q", s)
}

// PaymentDispute 支付争议，只记录与裁决，不自动触发资金变动
type PaymentDispute struct {
	ID             int64         `json:"id"`
	SubmissionID   int64         `gorm:"index" json:"submission_id"`
	DisputedBy     int64         `gorm:"index" json:"disputed_by"`
	DisputedByRole OwnerType     `gorm:"size:16" json:"disputed_by_role"`
	DisputeType    DisputeType   `gorm:"size:32" json:"dispute_type"`
	Description    string        `gorm:"type:text" json:"description"`
	Status         DisputeStatus `gorm:"size:16;index" json:"status"`
	Resolution     string        `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedBy     *int64        `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// DisputeEvent 状态变更历史
type DisputeEvent struct {
	ID         int64         `json:"id"`
	DisputeID  int64         `gorm:"index" json:"dispute_id"`
	FromStatus DisputeStatus `gorm:"size:16" json:"from_status"`
	ToStatus   DisputeStatus `gorm:"size:16" json:"to_status"`
	ActorID    int64         `json:"actor_id"`
	Note       string        `gorm:"size:512" json:"note,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SubmissionRef 漏洞提交的只读投影，提交本身的增删改不在本服务
type SubmissionRef struct {
	ID             int64  `json:"id"`
	ProgramID      int64  `json:"program_id"`
	ResearcherID   int64  `json:"researcher_id"`
	CompanyID      int64  `json:"company_id"`
	CompanyOwnerID int64  `json:"company_owner_id"`
	Status         string `gorm:"size:32" json:"status"`
}

func (SubmissionRef) TableName() string { return "submissions" }
