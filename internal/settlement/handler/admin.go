package handler

import (
	"context"
	"time"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/common"
	"github.com/gin-gonic/gin"
)

// ========== 后台 ==========
// 路由挂在管理员会话中间件之后，adminID 一定存在

func (h *Handler) PendingWithdrawals(c *gin.Context) {
	p, l := page(c)
	list, err := h.crypto.ListPendingWithdrawals(c.Request.Context(), p, l)
	reply(c, list, err)
}

func (h *Handler) PendingCryptoDeposits(c *gin.Context) {
	p, l := page(c)
	list, err := h.crypto.ListPendingDeposits(c.Request.Context(), p, l)
	reply(c, list, err)
}

// RevealAddress GET /admin/withdrawals/:id/address
func (h *Handler) RevealAddress(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	addr, err := h.crypto.RevealAddress(c.Request.Context(), adminID(c), id)
	reply(c, gin.H{"address": addr}, err)
}

func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.ApproveWithdrawal(c.Request.Context(), adminID(c), id)
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerResearcher, w.UserID)
	}
	reply(c, w, err)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req reasonReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.RejectWithdrawal(c.Request.Context(), adminID(c), id, req.Reason)
	reply(c, w, err)
}

type completeReq struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req completeReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.CompleteWithdrawal(c.Request.Context(), adminID(c), id, req.TxHash)
	reply(c, w, err)
}

func (h *Handler) FailWithdrawal(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req reasonReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	w, err := h.crypto.FailWithdrawal(c.Request.Context(), adminID(c), id, req.Reason)
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerResearcher, w.UserID)
	}
	reply(c, w, err)
}

func (h *Handler) ApproveCryptoDeposit(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	t, err := h.crypto.ApproveDeposit(c.Request.Context(), adminID(c), id)
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), t.OwnerType, t.OwnerID)
	}
	reply(c, t, err)
}

func (h *Handler) RejectCryptoDeposit(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	t, err := h.crypto.RejectDeposit(c.Request.Context(), adminID(c), id)
	reply(c, t, err)
}

func (h *Handler) ApprovePayout(c *gin.Context) {
	h.payoutAction(c, h.fiat.ApproveReviewedPayout)
}

func (h *Handler) RetryPayout(c *gin.Context) {
	h.payoutAction(c, h.fiat.RetryPayout)
}

// RefundPayout 托管退回公司，两边的余额缓存都要失效
func (h *Handler) RefundPayout(c *gin.Context) {
	h.payoutAction(c, func(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error) {
		p, err := h.fiat.RefundFailedPayout(ctx, adminID, payoutID)
		if err != nil {
			return nil, err
		}
		if e, err := h.fiat.GetEscrowBySubmission(ctx, p.SubmissionID); err == nil {
			h.balances.Invalidate(ctx, domain.OwnerCompany, e.CompanyID)
		}
		return p, nil
	})
}

func (h *Handler) payoutAction(c *gin.Context, fn func(ctx context.Context, adminID, payoutID int64) (*domain.Payout, error)) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	p, err := fn(c.Request.Context(), adminID(c), id)
	if err == nil {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerResearcher, p.ResearcherID)
	}
	reply(c, p, err)
}

type refundExpiredReq struct {
	Limit int `json:"limit"`
}

// RefundExpiredEscrows POST /admin/escrows/refund-expired
func (h *Handler) RefundExpiredEscrows(c *gin.Context) {
	var req refundExpiredReq
	_ = c.ShouldBindJSON(&req)
	list, err := h.fiat.RefundExpiredEscrows(c.Request.Context(), time.Now().UTC(), req.Limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	for i := range list {
		h.balances.Invalidate(c.Request.Context(), domain.OwnerCompany, list[i].CompanyID)
	}
	common.Success(c, gin.H{"refunded": len(list)})
}

func (h *Handler) StartDisputeReview(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	d, err := h.disputes.StartReview(c.Request.Context(), id, adminID(c))
	reply(c, d, err)
}

type resolveReq struct {
	Status     string `json:"status" binding:"required"`
	Resolution string `json:"resolution"`
}

func (h *Handler) ResolveDispute(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req resolveReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	d, err := h.disputes.ResolveDispute(c.Request.Context(), id, domain.DisputeStatus(req.Status), req.Resolution, adminID(c))
	reply(c, d, err)
}
