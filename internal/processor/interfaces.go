package processor

import (
	"context"

	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/types"
)

//
// 流水线各阶段接口
//

// TextExtractor 从上传文件中提取纯文本
type TextExtractor interface {
	ExtractText(ctx context.Context, filename string, content []byte) (string, error)
}

// ProfileParser 把简历文本解析为结构化档案
type ProfileParser interface {
	Parse(ctx context.Context, resumeText string) (*types.CandidateProfile, error)
}

// CandidateScorer 评估候选人与岗位的匹配度
type CandidateScorer interface {
	Score(ctx context.Context, resumeText string, profile *types.CandidateProfile, job types.JobRequirements) (*types.Evaluation, error)
}

// RequirementsExtractor 从职位描述中抽取结构化要求
type RequirementsExtractor interface {
	Extract(ctx context.Context, jobDescription string) (*types.ExtractedRequirements, error)
}

// Embedder 文本向量化
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

//
// 存储相关接口
//

// JobStore 岗位记录存储
type JobStore interface {
	CreateJob(ctx context.Context, job *models.JobPosting) error
	ListJobs(ctx context.Context, tenantID string) ([]models.JobPosting, error)
	GetJob(ctx context.Context, tenantID string, jobID uint64) (*models.JobPosting, error)
}

// CandidateStore 候选人记录存储，所有查询都按租户限定
type CandidateStore interface {
	InsertCandidateWithOutbox(ctx context.Context, c *models.Candidate, build storage.OutboxBuilder) error
	SaveCandidateVector(ctx context.Context, v *models.CandidateVector) error
	FindCandidateIDsByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) (map[string]uint64, error)
	FindCandidatesByIDs(ctx context.Context, tenantID string, ids []uint64) ([]models.Candidate, error)
	FindJobTitles(ctx context.Context, tenantID string, jobIDs []uint64) (map[uint64]string, error)
	ListJobCandidates(ctx context.Context, tenantID string, jobID uint64) ([]models.Candidate, error)
	GetCandidate(ctx context.Context, tenantID string, id uint64) (*models.Candidate, error)
	UpdateCandidateStatus(ctx context.Context, tenantID string, id uint64, status types.CandidateStatus) (*models.Candidate, error)
	DeleteCandidateWithOutbox(ctx context.Context, tenantID string, id uint64, build storage.DeleteOutboxBuilder) (*models.Candidate, *models.CandidateVector, error)
	DashboardStats(ctx context.Context, tenantID string) (*storage.DashboardStats, error)
}

// RecordStore 岗位与候选人的完整记录存储，由 storage.MySQL 实现
type RecordStore interface {
	JobStore
	CandidateStore
}

var _ RecordStore = (*storage.MySQL)(nil)
