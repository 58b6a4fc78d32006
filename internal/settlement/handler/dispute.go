package handler

import (
	"strconv"

	"bountyhub.com/internal/settlement/domain"
	"bountyhub.com/pkg/common"
	"github.com/gin-gonic/gin"
)

type disputeReq struct {
	SubmissionID int64  `json:"submission_id" binding:"required"`
	DisputeType  string `json:"dispute_type" binding:"required"`
	Description  string `json:"description"`
}

// CreateDispute POST /disputes
func (h *Handler) CreateDispute(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	var req disputeReq
	if err := bind(c, &req); err != nil {
		common.FailErr(c, err)
		return
	}
	d, err := h.disputes.CreateDispute(c.Request.Context(), req.SubmissionID, user, req.DisputeType, req.Description)
	reply(c, d, err)
}

// GetDispute GET /disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	d, err := h.disputes.GetDispute(c.Request.Context(), id)
	reply(c, d, err)
}

// ListDisputes GET /disputes?submission_id=
func (h *Handler) ListDisputes(c *gin.Context) {
	sid, err := strconv.ParseInt(c.Query("submission_id"), 10, 64)
	if err != nil || sid <= 0 {
		common.FailErr(c, domain.ErrValidation.WithMsg("submission_id is required"))
		return
	}
	list, err := h.disputes.ListDisputes(c.Request.Context(), sid)
	reply(c, list, err)
}

// DisputeHistory GET /disputes/:id/history
func (h *Handler) DisputeHistory(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		common.FailErr(c, err)
		return
	}
	events, err := h.disputes.History(c.Request.Context(), id)
	reply(c, events, err)
}
