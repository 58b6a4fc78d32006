package handler

import (
	"io"
	"net/http"

	"bountyhub.com/internal/settlement/crypto"
	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/internal/settlement/provider/cryptopay"
	"bountyhub.com/pkg/common"
	"github.com/gin-gonic/gin"
)

// CreateCryptoDeposit POST /crypto/deposits
func (h *Handler) CreateCryptoDeposit(c *gin.Context) {
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
	o, err := h.crypto.CreateProviderOrder(c.Request.Context(), company, m, req.Purpose, c.ClientIP())
	reply(c, o, err)
}

// GetCryptoDeposit GET /crypto/deposits/:order_id
func (h *Handler) GetCryptoDeposit(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	o, err := h.crypto.GetOrder(c.Request.Context(), company, c.Param("order_id"))
	reply(c, o, err)
}

// CryptoWebhook POST /webhooks/cryptopay，收银台要求固定格式的应答
func (h *Handler) CryptoWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.FailErr(c, domain.ErrValidation.WithMsg("read webhook body"))
		return
	}
	hdr := domain.WebhookHeaders{
		Timestamp: c.GetHeader(cryptopay.HeaderTimestamp),
		Nonce:     c.GetHeader(cryptopay.HeaderNonce),
		Signature: c.GetHeader(cryptopay.HeaderSignature),
	}
	if err := h.crypto.HandleProviderWebhook(c.Request.Context(), hdr, payload); err != nil {
		common.FailErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"returnCode": "SUCCESS", "returnMessage": nil})
}

type cryptoWalletReq struct {
	WalletType string `json:"wallet_type"`
	Address    string `json:"address" binding:"required"`
	Network    string `json:"network" binding:"required"`
}

// AddCryptoWallet POST /crypto/wallets
func (h *Handler) AddCryptoWallet(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req cryptoWalletReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.AddUserWallet(c.Request.Context(), user, req.WalletType, req.Address, domain.NormalizeNetwork(req.Network))
	reply(c, w, err)
}

// ListCryptoWallets GET /crypto/wallets
func (h *Handler) ListCryptoWallets(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	list, err := h.crypto.ListUserWallets(c.Request.Context(), user)
	reply(c, list, err)
}

type withdrawalReq struct {
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency"`
	Address  string `json:"address" binding:"required"`
	Network  string `json:"network" binding:"required"`
}

// CreateWithdrawal POST /crypto/withdrawals
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req withdrawalReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	m, err := h.money(req.Amount, req.Currency)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.CreateCryptoWithdrawal(c.Request.Context(), crypto.WithdrawalRequest{
		UserID:  user,
		Amount:  m,
		Address: req.Address,
		Network: domain.Network(req.Network),
		IP:      c.ClientIP(),
	})
	reply(c, w, err)
}

// ListWithdrawals GET /crypto/withdrawals
func (h *Handler) ListWithdrawals(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, l := page(c)
	list, err := h.crypto.ListWithdrawals(c.Request.Context(), user, p, l)
	reply(c, list, err)
}

// CancelWithdrawal POST /crypto/withdrawals/:id/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
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
	w, err := h.crypto.CancelWithdrawal(c.Request.Context(), user, id)
	reply(c, w, err)
}
