package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"talent-match/internal/constants"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// SearchRequest 人才库语义检索请求
type SearchRequest struct {
	Query         string `json:"query"`
	MinExperience int    `json:"min_experience,omitempty"`
	TopK          *int   `json:"top_k,omitempty"`
}

// SearchResult 检索命中的候选人，附带相似度与岗位名称
type SearchResult struct {
	models.Candidate
	SimilarityScore float32 `json:"similarity_score"`
	JobTitle        string  `json:"job_title"`
}

// SearchResponse 检索结果
type SearchResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []SearchResult `json:"results"`
}

// Search 在租户的人才库中做语义检索。
// 查询为空返回 types.ErrEmptyQuery；向量生成失败返回 types.ErrEmbedding；索引查询失败返回 types.ErrIndexUnavailable。
func (p *Processor) Search(ctx context.Context, tenantID string, req SearchRequest) (*SearchResponse, error) {
	ctx, span := tracer.Start(ctx, "Processor.Search")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		tracing.RecordError(span, types.ErrEmptyQuery, tracing.ErrorTypeValidation)
		return nil, types.ErrEmptyQuery
	}
	if err := requireComponents("search", map[string]bool{
		"store":    p.comps.Store != nil,
		"embedder": p.comps.Query != nil,
	}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	minExperience := max(req.MinExperience, 0)
	topK := constants.DefaultTopK
	if req.TopK != nil {
		topK = min(max(*req.TopK, 1), constants.MaxTopK)
	}
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("search.query", tracing.SafeQuery(query)),
		attribute.Int("search.top_k", topK),
		attribute.Int("search.min_experience", minExperience),
	)

	vector, err := p.comps.Query.EmbedText(ctx, query)
	if err != nil {
		if !errors.Is(err, types.ErrEmbedding) {
			err = fmt.Errorf("%w: %v", types.ErrEmbedding, err)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	matches, err := p.comps.Index.Query(ctx, vector, topK, storage.VectorFilter{TenantID: tenantID})
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrIndexUnavailable, err)
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	resp := &SearchResponse{Query: query, Results: []SearchResult{}}
	if len(matches) == 0 {
		return resp, nil
	}

	ids, err := p.resolveCandidateIDs(ctx, tenantID, matches)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}

	records, err := p.comps.Store.FindCandidatesByIDs(ctx, tenantID, uniqueIDs(ids))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	byID := make(map[uint64]models.Candidate, len(records))
	jobIDs := make([]uint64, 0, len(records))
	seenJob := make(map[uint64]bool)
	for _, c := range records {
		if c.TenantID != tenantID {
			p.logger.Warn().Str("tenant_id", tenantID).Uint64("candidate_id", c.ID).Msg("检索结果租户不匹配，已过滤")
			continue
		}
		byID[c.ID] = c
		if !seenJob[c.JobID] {
			seenJob[c.JobID] = true
			jobIDs = append(jobIDs, c.JobID)
		}
	}

	titles, err := p.comps.Store.FindJobTitles(ctx, tenantID, jobIDs)
	if err != nil {
		p.logger.Warn().Err(err).Msg("查询岗位标题失败，结果中不含岗位名称")
		titles = map[uint64]string{}
	}

	for _, m := range matches {
		id, ok := ids[m.ID]
		if !ok {
			continue
		}
		c, ok := byID[id]
		if !ok {
			continue
		}
		if c.ExperienceYears < minExperience {
			continue
		}
		resp.Results = append(resp.Results, SearchResult{
			Candidate:       c,
			SimilarityScore: m.Score,
			JobTitle:        titles[c.JobID],
		})
	}
	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].SimilarityScore > resp.Results[j].SimilarityScore
	})
	resp.Total = len(resp.Results)

	span.SetAttributes(
		attribute.Int("search.matches", len(matches)),
		attribute.Int("search.results", resp.Total),
	)
	return resp, nil
}

// resolveCandidateIDs 通过映射表把向量ID解析为候选人ID，缺失映射时解析ID前缀
func (p *Processor) resolveCandidateIDs(ctx context.Context, tenantID string, matches []storage.VectorMatch) (map[string]uint64, error) {
	vectorIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		vectorIDs = append(vectorIDs, m.ID)
	}
	mapped, err := p.comps.Store.FindCandidateIDsByVectorIDs(ctx, tenantID, vectorIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(matches))
	for _, vid := range vectorIDs {
		if id, ok := mapped[vid]; ok {
			out[vid] = id
			continue
		}
		if id, ok := CandidateIDFromVectorID(vid); ok {
			out[vid] = id
		} else {
			p.logger.Debug().Str("vector_id", vid).Msg("无法解析的向量ID，已忽略")
		}
	}
	return out, nil
}

// IndexStats 返回向量索引状态
func (p *Processor) IndexStats(ctx context.Context) storage.IndexStats {
	return p.comps.Index.Stats(ctx)
}

func uniqueIDs(m map[string]uint64) []uint64 {
	seen := make(map[uint64]bool, len(m))
	out := make([]uint64, 0, len(m))
	for _, id := range m {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
