package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"talent-match/internal/constants"
	"talent-match/internal/parser"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Ingest 批量处理上传到某个岗位的简历。
// 岗位不属于该租户时返回 types.ErrJobNotFound；单个文件的失败只体现在结果中，不影响其他文件。
// 结果顺序与输入顺序一致。
func (p *Processor) Ingest(ctx context.Context, tenantID string, jobID uint64, files []types.UploadedFile) (*types.IngestionReport, error) {
	ctx, span := tracer.Start(ctx, "Processor.Ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.Int64("job.id", int64(jobID)),
		attribute.Int("files.count", len(files)),
	)

	if err := requireComponents("ingest", map[string]bool{
		"store":     p.comps.Store != nil,
		"extractor": p.comps.Extractor != nil,
		"parser":    p.comps.Parser != nil,
		"scorer":    p.comps.Scorer != nil,
	}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	job, err := p.comps.Store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		tracing.RecordError(span, err, errorTypeOf(err))
		return nil, err
	}
	req := jobRequirements(job)

	results := make([]types.FileResult, len(files))
	var g errgroup.Group
	g.SetLimit(p.settings.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			results[i] = p.processFile(ctx, tenantID, job.ID, req, f)
			return nil
		})
	}
	_ = g.Wait()

	summary := types.IngestionSummary{Total: len(files)}
	for _, r := range results {
		if r.Status == types.FileStatusSuccess {
			summary.Success++
		} else {
			summary.Failed++
		}
	}
	span.SetAttributes(
		attribute.Int("files.success", summary.Success),
		attribute.Int("files.failed", summary.Failed),
	)
	p.logger.Info().
		Str("tenant_id", tenantID).
		Uint64("job_id", jobID).
		Int("total", summary.Total).
		Int("success", summary.Success).
		Int("failed", summary.Failed).
		Msg("简历批量处理完成")

	return &types.IngestionReport{
		Message: fmt.Sprintf("Processed %d resumes", len(files)),
		JobID:   jobID,
		Results: results,
		Summary: summary,
	}, nil
}

// processFile 处理单个文件，任何阶段失败都转为错误结果
func (p *Processor) processFile(ctx context.Context, tenantID string, jobID uint64, req types.JobRequirements, f types.UploadedFile) types.FileResult {
	if p.settings.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.FileTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "Processor.processFile", trace.WithAttributes(
		attribute.String("file.name", f.Filename),
		attribute.Int("file.size", len(f.Content)),
	))
	defer span.End()

	log := p.logger.With().
		Str("tenant_id", tenantID).
		Uint64("job_id", jobID).
		Str("filename", f.Filename).
		Logger()

	candidate, err := p.screenFile(ctx, &log, tenantID, jobID, req, f)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn().Err(err).Dur("timeout", p.settings.FileTimeout).Msg("文件处理超时")
			tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		} else {
			log.Warn().Err(err).Msg("简历处理失败")
			tracing.RecordError(span, err, errorTypeOf(err))
		}
		return types.FileResult{
			Filename: f.Filename,
			Status:   types.FileStatusError,
			Error:    types.UserMessage(err),
		}
	}

	score := candidate.MatchScore
	span.SetAttributes(attribute.Int64("candidate.id", int64(candidate.ID)))
	return types.FileResult{
		Filename:       f.Filename,
		CandidateID:    candidate.ID,
		Name:           candidate.Name,
		Score:          &score,
		Recommendation: types.Recommendation(candidate.Recommendation),
		Status:         types.FileStatusSuccess,
	}
}

// screenFile 依次执行：类型检查、文本提取、长度检查、解析、评分、归档、入库、向量化
func (p *Processor) screenFile(ctx context.Context, log *zerolog.Logger, tenantID string, jobID uint64, req types.JobRequirements, f types.UploadedFile) (*models.Candidate, error) {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !constants.AllowedResumeExtensions[ext] {
		return nil, types.NewPipelineError(f.Filename, "validate", types.ErrInvalidFileType, "")
	}
	if p.settings.MaxFileSize > 0 && int64(len(f.Content)) > p.settings.MaxFileSize {
		return nil, types.NewPipelineError(f.Filename, "validate", types.ErrExtraction,
			fmt.Sprintf("文件大小 %d 字节超过上限 %d 字节", len(f.Content), p.settings.MaxFileSize))
	}

	text, err := p.comps.Extractor.ExtractText(ctx, f.Filename, f.Content)
	if err != nil {
		return nil, stageError(f.Filename, "extract", types.ErrExtraction, err)
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < p.settings.MinTextLength {
		return nil, types.NewPipelineError(f.Filename, "extract", types.ErrInsufficientContent, "")
	}

	profile, err := p.comps.Parser.Parse(ctx, text)
	if err != nil {
		return nil, stageError(f.Filename, "parse", types.ErrParsing, err)
	}
	profile.Normalize()

	eval, err := p.comps.Scorer.Score(ctx, text, profile, req)
	if err != nil {
		return nil, stageError(f.Filename, "score", types.ErrScoring, err)
	}

	objectKey := p.archiveResume(ctx, log, tenantID, jobID, f)

	candidate, err := buildCandidate(tenantID, jobID, f.Filename, text, objectKey, profile, eval)
	if err != nil {
		return nil, stageError(f.Filename, "persist", types.ErrPersistence, err)
	}
	if err := p.comps.Store.InsertCandidateWithOutbox(ctx, candidate, p.comps.ScreenedEvent); err != nil {
		return nil, stageError(f.Filename, "persist", types.ErrPersistence, err)
	}
	log.Debug().Uint64("candidate_id", candidate.ID).Int("score", candidate.MatchScore).Msg("候选人记录已保存")

	p.indexCandidate(ctx, log, candidate, profile, text)
	return candidate, nil
}

// archiveResume 把原始文件写入对象存储，失败时只记录日志并返回空对象键
func (p *Processor) archiveResume(ctx context.Context, log *zerolog.Logger, tenantID string, jobID uint64, f types.UploadedFile) string {
	if p.comps.Archive == nil {
		return ""
	}
	key := storage.ResumeObjectKey(tenantID, jobID, f.Filename)
	if _, err := p.comps.Archive.UploadResume(ctx, key, f.Filename, f.Content); err != nil {
		log.Warn().Err(err).Str("object_key", key).Msg("归档原始简历失败，继续处理")
		return ""
	}
	return key
}

// indexCandidate 生成向量并写入索引与映射表。
// 失败只记录日志，候选人记录保留但不可被检索。
func (p *Processor) indexCandidate(ctx context.Context, log *zerolog.Logger, c *models.Candidate, profile *types.CandidateProfile, text string) bool {
	if p.comps.Embedder == nil || !p.comps.Index.Enabled() {
		return false
	}
	span := trace.SpanFromContext(ctx)
	vectorID := VectorID(c.ID)

	vector, err := p.comps.Embedder.EmbedText(ctx, parser.BuildCandidateEmbeddingText(profile, text, p.settings.EmbeddingResumeChars))
	if err != nil {
		log.Warn().Err(err).Str("vector_id", vectorID).Msg("生成简历向量失败，记录未建立索引")
		tracing.RecordDegraded(span, "embedding", err.Error())
		return false
	}

	meta := storage.VectorMetadata{
		TenantID: c.TenantID,
		JobID:    c.JobID,
		Name:     c.Name,
		Skills:   profile.Skills,
	}
	if !p.comps.Index.Upsert(ctx, vectorID, vector, meta) {
		log.Warn().Str("vector_id", vectorID).Msg("写入向量索引失败，记录未建立索引")
		tracing.RecordDegraded(span, "vector_index", "upsert failed")
		return false
	}

	mapping := &models.CandidateVector{
		VectorID:    vectorID,
		CandidateID: c.ID,
		TenantID:    c.TenantID,
		PointID:     storage.PointID(vectorID),
	}
	if err := p.comps.Store.SaveCandidateVector(ctx, mapping); err != nil {
		// 检索时会回退到解析向量ID前缀
		log.Warn().Err(err).Str("vector_id", vectorID).Msg("写入向量映射失败")
	}
	return true
}

// VectorID 候选人在向量索引中的ID
func VectorID(candidateID uint64) string {
	return constants.VectorIDPrefix + strconv.FormatUint(candidateID, 10)
}

// CandidateIDFromVectorID 从向量ID解析候选人ID
func CandidateIDFromVectorID(vectorID string) (uint64, bool) {
	raw, ok := strings.CutPrefix(vectorID, constants.VectorIDPrefix)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// stageError 把阶段错误包装为 PipelineError，已包装过的错误原样返回
func stageError(filename, op string, base, err error) error {
	var pe *types.PipelineError
	if errors.As(err, &pe) {
		return err
	}
	detail := strings.TrimPrefix(err.Error(), base.Error())
	detail = strings.TrimLeft(detail, ": ")
	return types.NewPipelineError(filename, op, base, detail)
}

func jobRequirements(job *models.JobPosting) types.JobRequirements {
	return types.JobRequirements{
		Title:            job.Title,
		Description:      job.Description,
		MustHaveSkills:   models.StringSlice(job.MustHaveSkills),
		NiceToHaveSkills: models.StringSlice(job.NiceToHaveSkills),
		MinExperience:    job.MinExperience,
	}
}

func buildCandidate(tenantID string, jobID uint64, filename, text, objectKey string, profile *types.CandidateProfile, eval *types.Evaluation) (*models.Candidate, error) {
	parsed, err := models.ToJSON(profile)
	if err != nil {
		return nil, err
	}
	skills, err := models.ToJSON(profile.Skills)
	if err != nil {
		return nil, err
	}
	evaluation, err := models.ToJSON(eval)
	if err != nil {
		return nil, err
	}
	matched, _ := models.ToJSON(eval.SkillsMatched)
	missing, _ := models.ToJSON(eval.SkillsMissing)
	strengths, _ := models.ToJSON(eval.Strengths)
	concerns, _ := models.ToJSON(eval.Concerns)

	return &models.Candidate{
		TenantID:         tenantID,
		JobID:            jobID,
		Name:             profile.Name,
		Email:            profile.Email,
		Phone:            profile.Phone,
		Location:         profile.Location,
		Summary:          profile.Summary,
		ResumeText:       text,
		ParsedData:       parsed,
		Skills:           skills,
		MatchScore:       int(eval.OverallScore),
		SkillsMatched:    matched,
		SkillsMissing:    missing,
		ExperienceYears:  int(profile.ExperienceYears),
		AIEvaluation:     evaluation,
		Strengths:        strengths,
		Concerns:         concerns,
		Recommendation:   string(eval.Recommendation),
		Status:           string(types.StatusScreened),
		OriginalFilename: filename,
		ResumeObjectKey:  objectKey,
	}, nil
}
