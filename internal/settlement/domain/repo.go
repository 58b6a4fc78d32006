package domain

import (
	"context"
	"time"
)

// Models 参与迁移的全部表
func Models() []any {
	return []any{
		&Wallet{}, &Transaction{}, &PaymentIntent{}, &ProcessedEvent{},
		&EscrowAccount{}, &Commission{}, &Payout{}, &PaymentMethod{},
		&CryptoWallet{}, &CryptoWithdrawal{}, &CryptoPaymentIntent{}, &CryptoTransaction{},
		&PaymentDispute{}, &DisputeEvent{}, &SubmissionRef{},
	}
}

// Transactor fn 内部的仓储调用必须使用 txCtx
type Transactor interface {
	Transaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

type WalletRepo interface {
	// GetWallet 钱包不存在时返回零余额钱包，不是错误
	GetWallet(ctx context.Context, owner OwnerType, ownerID int64) (*Wallet, error)
	// Credit 原子加钱，不存在则创建
	Credit(ctx context.Context, owner OwnerType, ownerID int64, m Money) error
	// Debit 原子扣钱，余额不足返回 ErrInsufficientBalance
	Debit(ctx context.Context, owner OwnerType, ownerID int64, m Money) error
	AddTotals(ctx context.Context, owner OwnerType, ownerID int64, paid, deposited int64) error
	CreateTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, owner OwnerType, ownerID int64, page, limit int) ([]Transaction, error)
}

type EventRepo interface {
	// MarkProcessed 首次插入返回 true，重复返回 false
	MarkProcessed(ctx context.Context, provider, externalID, kind, reference string) (bool, error)
}

type PaymentIntentRepo interface {
	CreateIntent(ctx context.Context, p *PaymentIntent) error
	GetIntentByProviderID(ctx context.Context, providerIntentID string) (*PaymentIntent, error)
	TransitionIntent(ctx context.Context, providerIntentID string, from, to IntentStatus, reason string, at time.Time) (bool, error)
}

type EscrowRepo interface {
	CreateEscrow(ctx context.Context, e *EscrowAccount) error
	GetEscrow(ctx context.Context, id int64) (*EscrowAccount, error)
	GetEscrowBySubmission(ctx context.Context, submissionID int64) (*EscrowAccount, error)
	TransitionEscrow(ctx context.Context, id int64, from, to EscrowStatus, at time.Time) (bool, error)
	ListExpiredEscrows(ctx context.Context, now time.Time, limit int) ([]EscrowAccount, error)
	CreateCommission(ctx context.Context, c *Commission) error
	ReverseCommission(ctx context.Context, escrowID int64) error
}

type PayoutRepo interface {
	CreatePayout(ctx context.Context, p *Payout) error
	GetPayout(ctx context.Context, id int64) (*Payout, error)
	TransitionPayout(ctx context.Context, id int64, from, to PayoutStatus, u PayoutUpdate) (bool, error)
	ListPayouts(ctx context.Context, researcherID int64, page, limit int) ([]Payout, error)
	CountLargePayoutsSince(ctx context.Context, researcherID, minAmount int64, since time.Time) (int64, error)

	CreatePaymentMethod(ctx context.Context, m *PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id int64) (*PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID int64) ([]PaymentMethod, error)
}

type CryptoRepo interface {
	CreateWallet(ctx context.Context, w *CryptoWallet) error
	TransitionWalletVerification(ctx context.Context, id int64, from, to VerificationStatus, at time.Time) (bool, error)
	GetCryptoWallet(ctx context.Context, id int64) (*CryptoWallet, error)
	ListWallets(ctx context.Context, userID int64) ([]CryptoWallet, error)

	CreateWithdrawal(ctx context.Context, w *CryptoWithdrawal) error
	GetWithdrawal(ctx context.Context, id int64) (*CryptoWithdrawal, error)
	TransitionWithdrawal(ctx context.Context, id int64, from, to WithdrawalStatus, u WithdrawalUpdate) (bool, error)
	ListWithdrawals(ctx context.Context, userID int64, page, limit int) ([]CryptoWithdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status WithdrawalStatus, page, limit int) ([]CryptoWithdrawal, error)
	CountWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	SumWithdrawalsSince(ctx context.Context, userID int64, since time.Time) (int64, error)

	CreateCryptoIntent(ctx context.Context, c *CryptoPaymentIntent) error
	GetCryptoIntentByOrder(ctx context.Context, merchantOrderID string) (*CryptoPaymentIntent, error)
	TransitionCryptoIntent(ctx context.Context, merchantOrderID string, from, to CryptoIntentStatus, u CryptoIntentUpdate) (bool, error)

	CreateCryptoTx(ctx context.Context, t *CryptoTransaction) error
	GetCryptoTx(ctx context.Context, id int64) (*CryptoTransaction, error)
	TransitionCryptoTx(ctx context.Context, id int64, from, to CryptoTxStatus, reviewer int64, at time.Time) (bool, error)
	TransitionWithdrawalTx(ctx context.Context, withdrawalID int64, from, to CryptoTxStatus, reviewer int64, at time.Time) (bool, error)
	ListCryptoTxByStatus(ctx context.Context, typ CryptoTxType, status CryptoTxStatus, page, limit int) ([]CryptoTransaction, error)
}

type DisputeRepo interface {
	CreateDispute(ctx context.Context, d *PaymentDispute) error
	GetDispute(ctx context.Context, id int64) (*PaymentDispute, error)
	ListDisputes(ctx context.Context, submissionID int64) ([]PaymentDispute, error)
	HasActiveDispute(ctx context.Context, submissionID int64) (bool, error)
	TransitionDispute(ctx context.Context, id int64, from []DisputeStatus, to DisputeStatus, resolution string, resolvedBy *int64, at time.Time) (bool, error)
	CreateDisputeEvent(ctx context.Context, e *DisputeEvent) error
	ListDisputeEvents(ctx context.Context, disputeID int64) ([]DisputeEvent, error)
}

// SubmissionDirectory 查询漏洞提交归属，未找到返回 ErrNotFound
type SubmissionDirectory interface {
	GetSubmission(ctx context.Context, id int64) (*SubmissionRef, error)
}
