package domain

import (
	"strings"
	"time"
)

type Network string

const (
	NetworkBitcoin  Network = "bitcoin"
	NetworkEthereum Network = "ethereum"
	NetworkBSC      Network = "bsc"
	NetworkPolygon  Network = "polygon"
	NetworkArbitrum Network = "arbitrum"
	NetworkTron     Network = "tron"
	NetworkSolana   Network = "solana"
)

func NormalizeNetwork(s string) Network {
	return Network(strings.ToLower(strings.TrimSpace(s)))
}

// IsEVM 以太坊系地址格式一致
func (n Network) IsEVM() bool {
	switch n {
	case NetworkEthereum, NetworkBSC, NetworkPolygon, NetworkArbitrum:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationUnverified    VerificationStatus = "unverified"
	VerificationChallengeSent VerificationStatus = "challenge_sent"
	VerificationVerified      VerificationStatus = "verified"
	VerificationFailed        VerificationStatus = "failed"
)

var verificationFlow = map[VerificationStatus][]VerificationStatus{
	VerificationUnverified:    {VerificationChallengeSent},
	VerificationChallengeSent: {VerificationVerified, VerificationFailed},
	VerificationFailed:        {VerificationChallengeSent},
}

func (s VerificationStatus) CanTransition(to VerificationStatus) bool {
	for _, next := range verificationFlow[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CryptoWallet 用户登记的链上地址
// WalletAddress 存密文，AddressIndex 是明文的盲索引，用于全平台查重
type CryptoWallet struct {
	ID                 int64              `json:"id"`
	UserID             int64              `gorm:"index" json:"user_id"`
	WalletType         string             `gorm:"size:32" json:"wallet_type"`
	WalletAddress      string             `gorm:"type:text" json:"-"`
	AddressIndex       string             `gorm:"uniqueIndex;size:64" json:"-"`
	AddressMasked      string             `gorm:"size:32" json:"address"`
	Network            Network            `gorm:"size:32" json:"network"`
	VerificationStatus VerificationStatus `gorm:"size:20" json:"verification_status"`
	IsVerified         bool               `gorm:"default:false" json:"is_verified"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

// CryptoWithdrawal 创建时一律 pending，审核通过才扣款
type CryptoWithdrawal struct {
	ID              int64            `json:"id"`
	UserID          int64            `gorm:"index:idx_withdrawal_user_time" json:"user_id"`
	Amount          int64            `json:"amount"`
	Currency        Currency         `gorm:"size:8" json:"currency"`
	WalletAddress   string           `gorm:"type:text" json:"-"`
	AddressMasked   string           `gorm:"size:32" json:"address"`
	Network         Network          `gorm:"size:32" json:"network"`
	Status          WithdrawalStatus `gorm:"size:16;index" json:"status"`
	ReviewedBy      int64            `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	RejectionReason string           `gorm:"size:255" json:"rejection_reason,omitempty"`
	TxHash          string           `gorm:"size:128" json:"tx_hash,omitempty"`
	FailureReason   string           `gorm:"size:255" json:"failure_reason,omitempty"`
	Version         int64            `gorm:"default:0" json:"-"`
	CreatedAt       time.Time        `gorm:"index:idx_withdrawal_user_time" json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (w *CryptoWithdrawal) Money() Money { return Money{Amount: w.Amount, Currency: w.Currency} }

// WithdrawalUpdate 审核/完成时写入的字段
type WithdrawalUpdate struct {
	ReviewedBy      int64
	RejectionReason string
	TxHash          string
	FailureReason   string
	At              time.Time
}

type CryptoIntentStatus string

const (
	CryptoIntentPending   CryptoIntentStatus = "pending"
	CryptoIntentCompleted CryptoIntentStatus = "completed"
	CryptoIntentFailed    CryptoIntentStatus = "failed"
)

// CryptoPaymentIntent 托管收银台订单
type CryptoPaymentIntent struct {
	ID              int64              `json:"id"`
	CompanyID       int64              `gorm:"index" json:"company_id"`
	MerchantOrderID string             `gorm:"uniqueIndex;size:64" json:"merchant_order_id"`
	ProviderOrderID string             `gorm:"size:64;index" json:"provider_order_id"`
	Amount          int64              `json:"amount"`
	Currency        Currency           `gorm:"size:8" json:"currency"`
	Purpose         string             `gorm:"size:64" json:"purpose"`
	Status          CryptoIntentStatus `gorm:"size:16" json:"status"`
	CheckoutURL     string             `gorm:"size:512" json:"checkout_url"`
	QRContent       string             `gorm:"size:1024" json:"qr_content"`
	FailureReason   string             `gorm:"size:255" json:"failure_reason,omitempty"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (c *CryptoPaymentIntent) Money() Money { return Money{Amount: c.Amount, Currency: c.Currency} }

// CryptoIntentUpdate 下单成功 / 回调时写入的字段
type CryptoIntentUpdate struct {
	ProviderOrderID string
	CheckoutURL     string
	QRContent       string
	FailureReason   string
	ExpiresAt       *time.Time
	At              time.Time
}

type CryptoTxType string

const (
	CryptoTxDeposit    CryptoTxType = "deposit"
	CryptoTxWithdrawal CryptoTxType = "withdrawal"
)

type CryptoTxStatus string

const (
	CryptoTxPendingApproval CryptoTxStatus = "pending_approval"
	CryptoTxApproved        CryptoTxStatus = "approved"
	CryptoTxCompleted       CryptoTxStatus = "completed"
	CryptoTxRejected        CryptoTxStatus = "rejected"
	CryptoTxFailed          CryptoTxStatus = "failed"
)

// CryptoTransaction 链上资金流水，充值按三方交易号唯一
type CryptoTransaction struct {
	ID                    int64          `json:"id"`
	OwnerType             OwnerType      `gorm:"size:16;index:idx_crypto_tx_owner" json:"owner_type"`
	OwnerID               int64          `gorm:"index:idx_crypto_tx_owner" json:"owner_id"`
	Type                  CryptoTxType   `gorm:"size:16" json:"type"`
	Amount                int64          `json:"amount"`
	Currency              Currency       `gorm:"size:8" json:"currency"`
	Network               Network        `gorm:"size:32" json:"network,omitempty"`
	Status                CryptoTxStatus `gorm:"size:20;index" json:"status"`
	ProviderTransactionID *string        `gorm:"uniqueIndex;size:128" json:"provider_transaction_id,omitempty"`
	IntentID              *int64         `gorm:"index" json:"intent_id,omitempty"`
	WithdrawalID          *int64         `gorm:"index" json:"withdrawal_id,omitempty"`
	ReviewedBy            int64          `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func (c *CryptoTransaction) Money() Money { return Money{Amount: c.Amount, Currency: c.Currency} }
