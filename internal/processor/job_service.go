package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"talent-match/internal/constants"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

// ErrDescriptionRequired 抽取职位要求时描述为空
var ErrDescriptionRequired = errors.New("Description is required")

// CreateJobRequest 新建岗位
type CreateJobRequest struct {
	Title            string         `json:"title" validate:"required,max=255"`
	Description      string         `json:"description" validate:"required"`
	Requirements     map[string]any `json:"requirements,omitempty"`
	MustHaveSkills   []string       `json:"must_have_skills"`
	NiceToHaveSkills []string       `json:"nice_to_have_skills"`
	MinExperience    int            `json:"min_experience" validate:"gte=0"`
}

// CreateJob 为租户创建状态为 active 的岗位
func (p *Processor) CreateJob(ctx context.Context, tenantID string, req CreateJobRequest) (*models.JobPosting, error) {
	if err := requireComponents("create job", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}

	must, err := models.ToJSON(trimSkills(req.MustHaveSkills))
	if err != nil {
		return nil, fmt.Errorf("序列化必备技能失败: %w", err)
	}
	nice, err := models.ToJSON(trimSkills(req.NiceToHaveSkills))
	if err != nil {
		return nil, fmt.Errorf("序列化加分技能失败: %w", err)
	}
	var requirements datatypes.JSON
	if req.Requirements != nil {
		if requirements, err = models.ToJSON(req.Requirements); err != nil {
			return nil, fmt.Errorf("序列化岗位要求失败: %w", err)
		}
	}

	job := &models.JobPosting{
		TenantID:         tenantID,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		MustHaveSkills:   must,
		NiceToHaveSkills: nice,
		MinExperience:    max(req.MinExperience, 0),
		Requirements:     requirements,
		Status:           constants.JobStatusActive,
	}
	if err := p.comps.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	p.logger.Info().Str("tenant_id", tenantID).Uint64("job_id", job.ID).Str("title", job.Title).Msg("岗位已创建")
	return job, nil
}

// ListJobs 按创建时间倒序列出租户的岗位
func (p *Processor) ListJobs(ctx context.Context, tenantID string) ([]models.JobPosting, error) {
	if err := requireComponents("list jobs", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	jobs, err := p.comps.Store.ListJobs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []models.JobPosting{}
	}
	return jobs, nil
}

// GetJob 获取租户的岗位，不存在时返回 types.ErrJobNotFound
func (p *Processor) GetJob(ctx context.Context, tenantID string, jobID uint64) (*models.JobPosting, error) {
	if err := requireComponents("get job", map[string]bool{"store": p.comps.Store != nil}); err != nil {
		return nil, err
	}
	return p.comps.Store.GetJob(ctx, tenantID, jobID)
}

// ExtractRequirements 从职位描述中抽取技能与经验要求
func (p *Processor) ExtractRequirements(ctx context.Context, description string) (*types.ExtractedRequirements, error) {
	ctx, span := tracer.Start(ctx, "Processor.ExtractRequirements")
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		tracing.RecordError(span, ErrDescriptionRequired, tracing.ErrorTypeValidation)
		return nil, ErrDescriptionRequired
	}
	if err := requireComponents("extract requirements", map[string]bool{"requirements": p.comps.Requirements != nil}); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("description.length", len(description)))

	p.logger.Info().Int("length", len(description)).Msg("开始抽取职位要求")
	req, err := p.comps.Requirements.Extract(ctx, description)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		p.logger.Error().Err(err).Msg("职位要求抽取失败")
		return nil, err
	}
	return req, nil
}

func trimSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
