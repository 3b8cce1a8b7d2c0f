package parser

import (
	"context"
	"fmt"
	"strings"

	"talent-match/internal/constants"
	"talent-match/internal/llm"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var requirementsTracer = otel.Tracer("talent-match/parser/requirements")

const requirementsPromptTemplate = `Analyze this job description and extract structured requirements.

Job Description:
%s

Extract and return ONLY a JSON object with:
- must_have_skills: Array of essential technical skills (max 10)
- nice_to_have_skills: Array of preferred skills (max 8)
- min_experience: Minimum years of experience required (integer)
- summary: One-sentence summary of the role

Return ONLY valid JSON, no markdown or explanation.

JSON:`

// RequirementsExtractor 从职位描述中抽取结构化要求
type RequirementsExtractor struct {
	completer llm.Completer
	logger    *zerolog.Logger
}

// NewRequirementsExtractor 创建抽取器。completer 应配置为温度 0。
func NewRequirementsExtractor(completer llm.Completer, l *zerolog.Logger) *RequirementsExtractor {
	return &RequirementsExtractor{completer: completer, logger: logger.OrNop(l)}
}

// Extract 抽取职位要求。模型调用失败或输出无法解码时都返回 types.ErrParsing。
func (e *RequirementsExtractor) Extract(ctx context.Context, jobDescription string) (*types.ExtractedRequirements, error) {
	ctx, span := requirementsTracer.Start(ctx, "parser.extract_requirements")
	defer span.End()

	e.logger.Info().Int("description_length", len(jobDescription)).Msg("开始抽取职位要求")

	reply, err := e.completer.Complete(ctx, fmt.Sprintf(requirementsPromptTemplate, jobDescription))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %v", types.ErrParsing, err)
	}

	var req types.ExtractedRequirements
	if err := decodeModelJSON(reply, &req); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		e.logger.Error().Err(err).Str("response", tracing.TruncateString(reply, 300)).Msg("职位要求抽取结果无法解码")
		return nil, fmt.Errorf("%w: %v", types.ErrParsing, err)
	}

	req.MustHaveSkills = limitSkills(req.MustHaveSkills, constants.MaxMustHaveSkills)
	req.NiceToHaveSkills = limitSkills(req.NiceToHaveSkills, constants.MaxNiceToHaveSkills)
	if req.MinExperience < 0 {
		req.MinExperience = 0
	}
	req.Summary = strings.TrimSpace(req.Summary)

	e.logger.Info().
		Int("must_have", len(req.MustHaveSkills)).
		Int("nice_to_have", len(req.NiceToHaveSkills)).
		Msg("职位要求抽取完成")
	return &req, nil
}

// limitSkills 去空白、去重并截断到上限
func limitSkills(skills []string, limit int) []string {
	out := make([]string, 0, min(len(skills), limit))
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		key := strings.ToLower(skill)
		if skill == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, skill)
		if len(out) == limit {
			break
		}
	}
	return out
}
