package processor

import (
	"context"
	"errors"
	"fmt"

	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// JobCandidates 岗位下的候选人列表
type JobCandidates struct {
	JobID      uint64             `json:"job_id"`
	Total      int                `json:"total"`
	Candidates []models.Candidate `json:"candidates"`
}

// ListJobCandidates 列出岗位下的候选人，按匹配分降序
func (p *Processor) ListJobCandidates(ctx context.Context, tenantID string, jobID uint64) (*JobCandidates, error) {
	if err := requireComponents("list candidates", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	candidates, err := p.comps.Store.ListJobCandidates(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	return &JobCandidates{JobID: jobID, Total: len(candidates), Candidates: candidates}, nil
}

// GetCandidate 获取候选人，不存在时返回 types.ErrCandidateNotFound
func (p *Processor) GetCandidate(ctx context.Context, tenantID string, id uint64) (*models.Candidate, error) {
	if err := requireComponents("get candidate", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	return p.comps.Store.GetCandidate(ctx, tenantID, id)
}

// ErrInvalidStatus 候选人状态不在允许的枚举内
var ErrInvalidStatus = errors.New("Invalid candidate status")

// UpdateCandidateStatus 修改候选人的招聘状态
func (p *Processor) UpdateCandidateStatus(ctx context.Context, tenantID string, id uint64, status types.CandidateStatus) (*models.Candidate, error) {
	if err := requireComponents("update candidate", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	if !ValidCandidateStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	c, err := p.comps.Store.UpdateCandidateStatus(ctx, tenantID, id, status)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Str("tenant_id", tenantID).Uint64("candidate_id", id).Str("status", string(status)).Msg("候选人状态已更新")
	return c, nil
}

// DeleteCandidate 删除候选人记录、向量映射与出站事件在同一事务内完成；
// 之后清理向量索引与归档文件，这两步失败只记录日志。
func (p *Processor) DeleteCandidate(ctx context.Context, tenantID string, id uint64) error {
	ctx, span := tracer.Start(ctx, "Processor.DeleteCandidate")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int64("candidate.id", int64(id)),
	)

	if err := requireComponents("delete candidate", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return err
	}

	c, mapping, err := p.comps.Store.DeleteCandidateWithOutbox(ctx, tenantID, id, p.comps.DeletedEvent)
	if err != nil {
		tracing.RecordError(span, err, errorTypeOf(err))
		return err
	}
	log := p.logger.With().Str("tenant_id", tenantID).Uint64("candidate_id", id).Logger()

	vectorID := VectorID(c.ID)
	if mapping != nil {
		vectorID = mapping.VectorID
	}
	if err := p.comps.Index.Delete(ctx, vectorID); err != nil {
		log.Warn().Err(err).Str("vector_id", vectorID).Msg("删除候选人向量失败")
		tracing.RecordDegraded(span, "vector_index", err.Error())
	}

	if c.ResumeObjectKey != "" && p.comps.Archive != nil {
		if err := p.comps.Archive.DeleteFile(ctx, c.ResumeObjectKey); err != nil {
			log.Warn().Err(err).Str("object_key", c.ResumeObjectKey).Msg("删除归档简历失败")
			tracing.RecordDegraded(span, "object_storage", err.Error())
		}
	}

	log.Info().Msg("候选人已删除")
	return nil
}

// DashboardStats 租户的岗位与候选人统计
func (p *Processor) DashboardStats(ctx context.Context, tenantID string) (*storage.DashboardStats, error) {
	if err := requireComponents("dashboard stats", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	return p.comps.Store.DashboardStats(ctx, tenantID)
}

// ValidCandidateStatus 判断状态是否属于候选人状态枚举
func ValidCandidateStatus(s types.CandidateStatus) bool {
	switch s {
	case types.StatusScreened, types.StatusShortlisted, types.StatusInterviewing, types.StatusRejected, types.StatusHired:
		return true
	}
	return false
}
