package handler

import (
	"context"
	"io"

	"talent-match/internal/processor"
	"talent-match/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ResumeFormField 批量上传简历的表单字段，可重复
const ResumeFormField = "resumes"

type extractRequirementsBody struct {
	Description string `json:"description"`
}

// ExtractRequirements 从职位描述中抽取结构化要求
// POST /api/v1/jobs/extract-requirements
func (h *Handler) ExtractRequirements(ctx context.Context, c *app.RequestContext) {
	if _, ok := tenantOf(c); !ok {
		return
	}
	var body extractRequirementsBody
	if !h.decode(c, &body) {
		return
	}
	req, err := h.svc.ExtractRequirements(ctx, body.Description)
	if err != nil {
		h.writeError(ctx, c, "extract requirements", err, "Failed to extract requirements")
		return
	}
	c.JSON(consts.StatusOK, req)
}

// CreateJob 新建岗位
// POST /api/v1/jobs
func (h *Handler) CreateJob(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	var body processor.CreateJobRequest
	if !h.decode(c, &body) {
		return
	}
	job, err := h.svc.CreateJob(ctx, tenantID, body)
	if err != nil {
		h.writeError(ctx, c, "create job", err, "Failed to create job")
		return
	}
	c.JSON(consts.StatusCreated, job)
}

// ListJobs 列出租户的岗位
// GET /api/v1/jobs
func (h *Handler) ListJobs(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	jobs, err := h.svc.ListJobs(ctx, tenantID)
	if err != nil {
		h.writeError(ctx, c, "list jobs", err, "")
		return
	}
	c.JSON(consts.StatusOK, jobs)
}

// GetJob 获取单个岗位
// GET /api/v1/jobs/:job_id
func (h *Handler) GetJob(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	jobID, ok := idParam(c, "job_id")
	if !ok {
		return
	}
	job, err := h.svc.GetJob(ctx, tenantID, jobID)
	if err != nil {
		h.writeError(ctx, c, "get job", err, "")
		return
	}
	c.JSON(consts.StatusOK, job)
}

// UploadResumes 批量上传简历并完成筛选。单个文件失败不影响整批，结果逐个返回
// POST /api/v1/jobs/:job_id/upload-resumes
func (h *Handler) UploadResumes(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	jobID, ok := idParam(c, "job_id")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File[ResumeFormField]) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"detail": "No resume files uploaded"})
		return
	}

	headers := form.File[ResumeFormField]
	files := make([]types.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.logger.Error().Err(err).Str("filename", fh.Filename).Msg("打开上传文件失败")
			c.JSON(consts.StatusBadRequest, utils.H{"detail": "Failed to read uploaded file"})
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.logger.Error().Err(err).Str("filename", fh.Filename).Msg("读取上传文件失败")
			c.JSON(consts.StatusBadRequest, utils.H{"detail": "Failed to read uploaded file"})
			return
		}
		files = append(files, types.UploadedFile{Filename: fh.Filename, Content: content})
	}

	report, err := h.svc.Ingest(ctx, tenantID, jobID, files)
	if err != nil {
		h.writeError(ctx, c, "upload resumes", err, "Failed to process resumes")
		return
	}
	c.JSON(consts.StatusOK, report)
}

// ListJobCandidates 列出岗位下的候选人，按匹配分降序
// GET /api/v1/jobs/:job_id/candidates
func (h *Handler) ListJobCandidates(ctx context.Context, c *app.RequestContext) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}
	jobID, ok := idParam(c, "job_id")
	if !ok {
		return
	}
	list, err := h.svc.ListJobCandidates(ctx, tenantID, jobID)
	if err != nil {
		h.writeError(ctx, c, "list job candidates", err, "")
		return
	}
	c.JSON(consts.StatusOK, list)
}
