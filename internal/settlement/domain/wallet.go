package domain

import "time"

type OwnerType string

const (
	OwnerCompany    OwnerType = "company"
	OwnerResearcher OwnerType = "researcher"
)

// Wallet 余额只能通过原子增量 SQL 修改，不允许读出来改完再写回
type Wallet struct {
	ID             int64     `json:"id"`
	OwnerType      OwnerType `gorm:"uniqueIndex:idx_wallet_owner;size:16" json:"owner_type"`
	OwnerID        int64     `gorm:"uniqueIndex:idx_wallet_owner" json:"owner_id"`
	Currency       Currency  `gorm:"size:8" json:"currency"`
	Balance        int64     `gorm:"default:0" json:"balance"`
	TotalPaid      int64     `gorm:"default:0" json:"total_paid"`
	TotalDeposited int64     `gorm:"default:0" json:"total_deposited"`
	Version        int64     `gorm:"default:0" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (w *Wallet) Available() Money {
	return Money{Amount: w.Balance, Currency: w.Currency}
}

type TxType string

const (
	TxDeposit                TxType = "deposit"
	TxEscrowHold             TxType = "escrow_hold"
	TxEscrowRefund           TxType = "escrow_refund"
	TxPayout                 TxType = "payout"
	TxCryptoDeposit          TxType = "crypto_deposit"
	TxCryptoWithdrawal       TxType = "crypto_withdrawal"
	TxCryptoWithdrawalRefund TxType = "crypto_withdrawal_refund"
)

type TxStatus string

const (
	TxCompleted       TxStatus = "completed"
	TxPendingApproval TxStatus = "pending_approval"
	TxFailed          TxStatus = "failed"
)

// Transaction 钱包流水，Amount 正数入账负数出账
type Transaction struct {
	ID          int64     `json:"id"`
	OwnerType   OwnerType `gorm:"index:idx_tx_owner;size:16" json:"owner_type"`
	OwnerID     int64     `gorm:"index:idx_tx_owner" json:"owner_id"`
	Type        TxType    `gorm:"size:32" json:"type"`
	Amount      int64     `json:"amount"`
	Currency    Currency  `gorm:"size:8" json:"currency"`
	Status      TxStatus  `gorm:"size:20" json:"status"`
	Reference   string    `gorm:"size:64;index" json:"reference"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
