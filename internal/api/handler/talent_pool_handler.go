package handler

import (
	"context"

	"talent-match/internal/processor"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type searchBody struct {
	Query         string `json:"query"`
	MinExperience int    `json:"min_experience" validate:"gte=0"`
	TopK          *int   `json:"top_k"`
}

// Search 人才库语义检索
// POST /api/v1/talent-pool/search
func (h *Handler) Search(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var body searchBody
	if !h.decode(c, &body) {
		return
	}
	resp, err := h.svc.Search(ctx, tenantID, processor.SearchRequest{
		Query:         body.Query,
		MinExperience: body.MinExperience,
		TopK:          body.TopK,
	})
	if err != nil {
		h.writeError(ctx, c, "talent pool search", err, "Search failed")
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// IndexStats 向量索引状态
// GET /api/v1/talent-pool/stats
func (h *Handler) IndexStats(ctx context.Context, c *app.RequestContext) {
	if _, ok := tenantOf(c); !ok {
		return
	}
	c.JSON(consts.StatusOK, h.svc.IndexStats(ctx))
}
