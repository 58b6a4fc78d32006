package handler

import (
	"context"
	"strconv"
	"time"

	"bountyhub.com/internal/settlement/crypto"
	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/fiat"
	"bountyhub.com/pkg/common"
	"bountyhub.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
)

// 身份由上游网关鉴权后写入请求头
const (
	HeaderUserID    = "X-User-Id"
	HeaderCompanyID = "X-Company-Id"

	CtxKeyAdminID = "admin_id"
)

var errNoActor = xerr.Define(codes.Unauthenticated, "UNAUTHENTICATED", "authentication required")

type FiatService interface {
	CreatePaymentIntent(ctx context.Context, companyID int64, amount domain.Money, purpose, ip string) (*domain.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, providerIntentID string) (*domain.PaymentIntent, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*domain.PaymentIntent, error)
	CreateEscrowForBounty(ctx context.Context, submissionID int64, amount domain.Money, companyID int64) (*domain.EscrowAccount, error)
	GetEscrowBySubmission(ctx context.Context, submissionID int64) (*domain.EscrowAccount, error)
	RefundExpiredEscrows(ctx context.Context, now time.Time, limit int) ([]domain.EscrowAccount, error)
	RequestPayout(ctx context.Context, researcherID, submissionID, paymentMethodID int64, details map[string]string, ip string) (*domain.Payout, error)
	ReleaseEscrowAndPayout(ctx context.Context, req fiat.ReleaseRequest) (*domain.Payout, error)
	ApproveReviewedPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error)
	RetryPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error)
	RefundFailedPayout(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error)
	ListPayouts(ctx context.Context, researcherID int64, page, limit int) ([]domain.Payout, error)
	GetPayout(ctx context.Context, researcherID, payoutID int64) (*domain.Payout, error)
	AddPaymentMethod(ctx context.Context, userID int64, typ domain.MethodType, details map[string]string, isDefault bool) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID int64) ([]domain.PaymentMethod, error)
	ListTransactions(ctx context.Context, owner domain.OwnerType, ownerID int64, page, limit int) ([]domain.Transaction, error)
}

type CryptoService interface {
	CreateProviderOrder(ctx context.Context, companyID int64, amount domain.Money, purpose, ip string) (*domain.CryptoPaymentIntent, error)
	GetOrder(ctx context.Context, companyID int64, merchantOrderID string) (*domain.CryptoPaymentIntent, error)
	HandleProviderWebhook(ctx context.Context, h domain.WebhookHeaders, payload []byte) error
	AddUserWallet(ctx context.Context, userID int64, walletType, address string, network domain.Network) (*domain.CryptoWallet, error)
	ListUserWallets(ctx context.Context, userID int64) ([]domain.CryptoWallet, error)
	CreateCryptoWithdrawal(ctx context.Context, req crypto.WithdrawalRequest) (*domain.CryptoWithdrawal, error)
	ListWithdrawals(ctx context.Context, userID int64, page, limit int) ([]domain.CryptoWithdrawal, error)
	CancelWithdrawal(ctx context.Context, userID, withdrawalID int64) (*domain.CryptoWithdrawal, error)

	ListPendingWithdrawals(ctx context.Context, page, limit int) ([]domain.CryptoWithdrawal, error)
	ListPendingDeposits(ctx context.Context, page, limit int) ([]domain.CryptoTransaction, error)
	RevealAddress(ctx context.Context, adminID, withdrawalID int64) (string, error)
	ApproveWithdrawal(ctx context.Context, adminID, withdrawalID int64) (*domain.CryptoWithdrawal, error)
	RejectWithdrawal(ctx context.Context, adminID, withdrawalID int64, reason string) (*domain.CryptoWithdrawal, error)
	CompleteWithdrawal(ctx context.Context, adminID, withdrawalID int64, txHash string) (*domain.CryptoWithdrawal, error)
	FailWithdrawal(ctx context.Context, adminID, withdrawalID int64, reason string) (*domain.CryptoWithdrawal, error)
	ApproveDeposit(ctx context.Context, adminID, cryptoTxID int64) (*domain.CryptoTransaction, error)
	RejectDeposit(ctx context.Context, adminID, cryptoTxID int64) (*domain.CryptoTransaction, error)
}

type DisputeService interface {
	CreateDispute(ctx context.Context, submissionID, disputedBy int64, typ, description string) (*domain.PaymentDispute, error)
	StartReview(ctx context.Context, disputeID, adminID int64) (*domain.PaymentDispute, error)
	ResolveDispute(ctx context.Context, disputeID int64, status domain.DisputeStatus, resolution string, resolvedBy int64) (*domain.PaymentDispute, error)
	GetDispute(ctx context.Context, id int64) (*domain.PaymentDispute, error)
	ListDisputes(ctx context.Context, submissionID int64) ([]domain.PaymentDispute, error)
	History(ctx context.Context, disputeID int64) ([]domain.DisputeEvent, error)
}

// BalanceReader 展示用余额读取，可以带缓存
type BalanceReader interface {
	GetWallet(ctx context.Context, owner domain.OwnerType, ownerID int64) (*domain.Wallet, error)
	Invalidate(ctx context.Context, owner domain.OwnerType, ownerID int64)
}

type Handler struct {
	fiat     FiatService
	crypto   CryptoService
	disputes DisputeService
	balances BalanceReader
	currency domain.Currency
}

func New(f FiatService, c CryptoService, d DisputeService, b BalanceReader, currency domain.Currency) *Handler {
	if currency == "" {
		currency = domain.USD
	}
	return &Handler{fiat: f, crypto: c, disputes: d, balances: b, currency: currency}
}

func headerID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.GetHeader(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNoActor.WithMsg("missing or invalid %s", name)
	}
	return id, nil
}

func userID(c *gin.Context) (int64, error) { return headerID(c, HeaderUserID) }

func companyID(c *gin.Context) (int64, error) { return headerID(c, HeaderCompanyID) }

func adminID(c *gin.Context) int64 { return c.GetInt64(CtxKeyAdminID) }

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrValidation.WithMsg("invalid %s", name)
	}
	return id, nil
}

// page 默认第一页，每页 20 条
func page(c *gin.Context) (int, int) {
	p, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	l, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return p, l
}

func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return domain.ErrValidation.WithMsg("invalid request body: %v", err)
	}
	return nil
}

// money 请求里的金额为分，币种空时用钱包本位币
func (h *Handler) money(amount int64, currency string) (domain.Money, error) {
	if currency == "" {
		return domain.NewMoney(amount, h.currency), nil
	}
	cur, err := domain.ParseCurrency(currency)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(amount, cur), nil
}

// reply 统一出口
func reply(c *gin.Context, data any, err error) {
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, data)
}
