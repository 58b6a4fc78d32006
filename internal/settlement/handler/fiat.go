package handler

import (
	"io"
	"net/http"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/fiatpay"
	"bountyhub.com/pkg/common"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody 回调包体上限
const maxWebhookBody = 1 << 20

type amountReq struct {
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency"`
	Purpose  string `json:"purpose"`
}

// CreatePaymentIntent POST /deposits/intents
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req amountReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	m, err := h.money(req.Amount, req.Currency)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, err := h.fiat.CreatePaymentIntent(c.Request.Context(), company, m, req.Purpose, c.ClientIP())
	reply(c, p, err)
}

// ConfirmPayment POST /deposits/intents/:intent_id/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, err := h.fiat.ConfirmPayment(c.Request.Context(), c.Param("intent_id"))
	if err == nil && p.CompanyID != company {
		err = domain.ErrNotFound.WithMsg("payment intent %s", c.Param("intent_id"))
	}
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerCompany, company)
	}
	reply(c, p, err)
}

// FiatWebhook POST /webhooks/fiat，原始包体参与验签
func (h *Handler) FiatWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.FailErr(c, domain.ErrValidation.WithMsg("read webhook body"))
		return
	}
	p, err := h.fiat.HandleWebhook(c.Request.Context(), payload, c.GetHeader(fiatpay.SignatureHeader))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	if p != nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerCompany, p.CompanyID)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type escrowReq struct {
	SubmissionID int64  `json:"submission_id" binding:"required"`
	Amount       int64  `json:"amount" binding:"required"`
	Currency     string `json:"currency"`
}

// CreateEscrow POST /escrows
func (h *Handler) CreateEscrow(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req escrowReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	m, err := h.money(req.Amount, req.Currency)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	e, err := h.fiat.CreateEscrowForBounty(c.Request.Context(), req.SubmissionID, m, company)
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerCompany, company)
	}
	reply(c, e, err)
}

// GetEscrow GET /escrows/:submission_id，公司或研究员本人可见
func (h *Handler) GetEscrow(c *gin.Context) {
	sid, err := pathID(c, "submission_id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	e, err := h.fiat.GetEscrowBySubmission(c.Request.Context(), sid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	company, _ := companyID(c)
	user, _ := userID(c)
	if e.CompanyID != company && e.ResearcherID != user {
		common.FailErr(c, domain.ErrEscrowNotFound.WithMsg("no escrow for submission %d", sid))
		return
	}
	common.Success(c, e)
}

type payoutReq struct {
	SubmissionID    int64             `json:"submission_id" binding:"required"`
	PaymentMethodID int64             `json:"payment_method_id" binding:"required"`
	Details         map[string]string `json:"details"`
}

// RequestPayout POST /payouts
func (h *Handler) RequestPayout(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req payoutReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	p, err := h.fiat.RequestPayout(c.Request.Context(), user, req.SubmissionID, req.PaymentMethodID, req.Details, c.ClientIP())
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerResearcher, user)
	}
	reply(c, p, err)
}

// ListPayouts GET /payouts
func (h *Handler) ListPayouts(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, l := page(c)
	list, err := h.fiat.ListPayouts(c.Request.Context(), user, p, l)
	reply(c, list, err)
}

// GetPayout GET /payouts/:id
func (h *Handler) GetPayout(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, err := h.fiat.GetPayout(c.Request.Context(), user, id)
	reply(c, p, err)
}

type methodReq struct {
	Type      string            `json:"type" binding:"required"`
	Details   map[string]string `json:"details"`
	IsDefault bool              `json:"is_default"`
}

// AddPaymentMethod POST /payment-methods
func (h *Handler) AddPaymentMethod(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req methodReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	typ, err := domain.ParseMethodType(req.Type)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	m, err := h.fiat.AddPaymentMethod(c.Request.Context(), user, typ, req.Details, req.IsDefault)
	reply(c, m, err)
}

// ListPaymentMethods GET /payment-methods
func (h *Handler) ListPaymentMethods(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	list, err := h.fiat.ListPaymentMethods(c.Request.Context(), user)
	reply(c, list, err)
}

// owner 带公司头的按公司钱包处理，否则是研究员钱包
func owner(c *gin.Context) (domain.OwnerType, int64, error) {
	if c.GetHeader(HeaderCompanyID) != "" {
		id, err := companyID(c)
		return domain.OwnerCompany, id, err
	}
	id, err := userID(c)
	return domain.OwnerResearcher, id, err
}

// GetWallet GET /wallet
func (h *Handler) GetWallet(c *gin.Context) {
	typ, id, err := owner(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.balances.GetWallet(c.Request.Context(), typ, id)
	reply(c, w, err)
}

// ListTransactions GET /wallet/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	typ, id, err := owner(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, l := page(c)
	list, err := h.fiat.ListTransactions(c.Request.Context(), typ, id, p, l)
	reply(c, list, err)
}
