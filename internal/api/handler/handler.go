package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"talent-match/internal/constants"
	"talent-match/internal/logger"
	"talent-match/internal/processor"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Service 处理器对外提供的招聘流水线操作
type Service interface {
	ExtractRequirements(ctx context.Context, description string) (*types.ExtractedRequirements, error)
	CreateJob(ctx context.Context, tenantID string, req processor.CreateJobRequest) (*models.JobPosting, error)
	ListJobs(ctx context.Context, tenantID string) ([]models.JobPosting, error)
	GetJob(ctx context.Context, tenantID string, jobID uint64) (*models.JobPosting, error)
	Ingest(ctx context.Context, tenantID string, jobID uint64, files []types.UploadedFile) (*types.IngestionReport, error)
	ListJobCandidates(ctx context.Context, tenantID string, jobID uint64) (*processor.JobCandidates, error)
	UpdateCandidateStatus(ctx context.Context, tenantID string, id uint64, status types.CandidateStatus) (*models.Candidate, error)
	DeleteCandidate(ctx context.Context, tenantID string, id uint64) error
	DashboardStats(ctx context.Context, tenantID string) (*storage.DashboardStats, error)
	Search(ctx context.Context, tenantID string, req processor.SearchRequest) (*processor.SearchResponse, error)
	IndexStats(ctx context.Context) storage.IndexStats
}

var _ Service = (*processor.Processor)(nil)

// Handler 招聘流水线的 HTTP 处理器
type Handler struct {
	svc      Service
	validate *validator.Validate
	logger   *zerolog.Logger
}

// New 创建处理器
func New(svc Service, l *zerolog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger.OrNop(l),
	}
}

// Health 健康检查
func (h *Handler) Health(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "healthy"})
}

// Root 服务说明
func (h *Handler) Root(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"service": "talent-match", "status": "running"})
}

func tenantOf(c *app.RequestContext) (string, bool) {
	tenant := c.GetString(constants.ContextKeyTenantID)
	if tenant == "" {
		c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"detail": "Unauthorized"})
		return "", false
	}
	return tenant, true
}

// decode 解析并校验 JSON 请求体，失败时已写回 400
func (h *Handler) decode(c *app.RequestContext, v any) bool {
	if err := json.Unmarshal(c.Request.Body(), v); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"detail": "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"detail": validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Sprintf("validation error: %s - %s", ve[0].Field(), ve[0].Tag())
	}
	return "validation error: invalid request"
}

// idParam 解析路径中的数字ID
func idParam(c *app.RequestContext, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"detail": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return id, true
}

// statusOf 将领域错误映射为 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrEmptyQuery), errors.Is(err, processor.ErrDescriptionRequired),
		errors.Is(err, processor.ErrInvalidStatus):
		return consts.StatusBadRequest
	case errors.Is(err, types.ErrJobNotFound), errors.Is(err, types.ErrCandidateNotFound):
		return consts.StatusNotFound
	case errors.Is(err, types.ErrEmbedding), errors.Is(err, types.ErrIndexUnavailable):
		return consts.StatusServiceUnavailable
	default:
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return consts.StatusBadRequest
		}
		return consts.StatusInternalServerError
	}
}

// writeError 写回错误响应。5xx 不暴露内部细节，fallback 为空时使用通用文案
func (h *Handler) writeError(ctx context.Context, c *app.RequestContext, op string, err error, fallback string) {
	status := statusOf(err)
	detail := err.Error()
	switch status {
	case consts.StatusBadRequest:
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			detail = validationMessage(err)
		}
	case consts.StatusServiceUnavailable:
		detail = "Search service temporarily unavailable"
	case consts.StatusInternalServerError:
		detail = fallback
		if detail == "" {
			detail = "Internal server error"
		}
	}

	ev := h.logger.Warn()
	if status >= consts.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Ctx(ctx).Err(err).Str("op", op).Int("status", status).Msg("请求处理失败")

	c.JSON(status, utils.H{"detail": detail})
}
