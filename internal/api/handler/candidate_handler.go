package handler

import (
	"context"

	"talent-match/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type updateStatusBody struct {
	Status types.CandidateStatus `json:"status" validate:"required,oneof=screened shortlisted rejected interviewing hired"`
}

// UpdateCandidateStatus 修改候选人状态
// PATCH /api/v1/candidates/:id/status
func (h *Handler) UpdateCandidateStatus(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body updateStatusBody
	if !h.decode(c, &body) {
		return
	}
	candidate, err := h.svc.UpdateCandidateStatus(ctx, tenantID, id, body.Status)
	if err != nil {
		h.writeError(ctx, c, "update candidate status", err, "")
		return
	}
	c.JSON(consts.StatusOK, candidate)
}

// DeleteCandidate 删除候选人及其向量、映射与归档文件
// DELETE /api/v1/candidates/:id
func (h *Handler) DeleteCandidate(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteCandidate(ctx, tenantID, id); err != nil {
		h.writeError(ctx, c, "delete candidate", err, "")
		return
	}
	c.JSON(consts.StatusOK, utils.H{"message": "Candidate deleted", "id": id})
}

// DashboardStats 租户看板统计
// GET /api/v1/dashboard/stats
func (h *Handler) DashboardStats(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	stats, err := h.svc.DashboardStats(ctx, tenantID)
	if err != nil {
		h.writeError(ctx, c, "dashboard stats", err, "")
		return
	}
	c.JSON(consts.StatusOK, stats)
}
