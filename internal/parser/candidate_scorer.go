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

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var scorerTracer = otel.Tracer("talent-match/parser/scorer")

const scoringPromptTemplate = `You are an expert technical recruiter. Evaluate this candidate for the job position.

JOB REQUIREMENTS:
Title: %s
Description: %s
Must-have skills: %s
Nice-to-have skills: %s
Minimum experience: %d years

CANDIDATE PROFILE:
Name: %s
Experience: %d years
Skills: %s

Resume Summary:
%s

EVALUATION CRITERIA:
1. Skills Match (40 points): How many required skills does the candidate have?
2. Experience Level (30 points): Does experience meet minimum requirement?
3. Relevance (20 points): Is their background relevant to this role?
4. Growth Potential (10 points): Can they grow into the role?

Provide a detailed evaluation in JSON format:
{
    "overall_score": 0-100,
    "skills_matched": ["skill1", "skill2", ...],
    "skills_missing": ["skill1", "skill2", ...],
    "experience_match": true/false,
    "strengths": [
        "Specific strength 1",
        "Specific strength 2",
        "Specific strength 3"
    ],
    "concerns": [
        "Specific concern 1",
        "Specific concern 2"
    ],
    "recommendation": "hire" | "maybe" | "reject",
    "detailed_explanation": "2-3 sentence explanation of why this score",
    "score_breakdown": {
        "skills": 0-40,
        "experience": 0-30,
        "relevance": 0-20,
        "growth": 0-10
    }
}

Be honest and specific. Provide actionable insights.
Return ONLY the JSON object, no additional text.`

// CandidateScorer 根据岗位要求对候选人打分
type CandidateScorer struct {
	completer llm.Completer
	validate  *validator.Validate
	logger    *zerolog.Logger
}

// NewCandidateScorer 创建评分器。completer 应配置为温度 0.3。
func NewCandidateScorer(completer llm.Completer, l *zerolog.Logger) *CandidateScorer {
	return &CandidateScorer{
		completer: completer,
		validate:  validator.New(),
		logger:    logger.OrNop(l),
	}
}

// Score 评估候选人与岗位的匹配度。
// 模型调用失败返回 types.ErrScoring；输出无法解码或不符合约束时返回降级评估。
func (s *CandidateScorer) Score(ctx context.Context, resumeText string, profile *types.CandidateProfile, job types.JobRequirements) (*types.Evaluation, error) {
	if profile == nil {
		profile = FallbackProfile(resumeText)
	}
	ctx, span := scorerTracer.Start(ctx, "parser.score_candidate")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.title", job.Title),
		attribute.Int("job.must_have_count", len(job.MustHaveSkills)),
	)

	reply, err := s.completer.Complete(ctx, BuildScoringPrompt(resumeText, profile, job))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %v", types.ErrScoring, err)
	}

	var eval types.Evaluation
	if err := decodeModelJSON(reply, &eval); err != nil {
		s.logger.Warn().Err(err).Str("response", tracing.TruncateString(reply, 300)).Msg("评分结果无法解码，使用默认评估")
		tracing.RecordDegraded(span, "candidate_scorer", err.Error())
		return FallbackEvaluation(profile, job), nil
	}

	eval.OverallScore = clampScore(eval.OverallScore, 100)
	eval.Recommendation = types.Recommendation(strings.ToLower(strings.TrimSpace(string(eval.Recommendation))))
	if err := s.validate.Struct(&eval); err != nil {
		s.logger.Warn().Err(err).Msg("评分结果不符合约束，使用默认评估")
		tracing.RecordDegraded(span, "candidate_scorer", err.Error())
		return FallbackEvaluation(profile, job), nil
	}

	s.normalize(&eval)
	span.SetAttributes(
		attribute.Int("evaluation.overall_score", int(eval.OverallScore)),
		attribute.String("evaluation.recommendation", string(eval.Recommendation)),
	)
	s.logger.Info().
		Str("candidate", profile.Name).
		Str("job", job.Title).
		Int("score", int(eval.OverallScore)).
		Str("recommendation", string(eval.Recommendation)).
		Msg("候选人评分完成")
	return &eval, nil
}

func (s *CandidateScorer) normalize(eval *types.Evaluation) {
	b := &eval.ScoreBreakdown
	b.Skills = clampScore(b.Skills, types.MaxSkillsScore)
	b.Experience = clampScore(b.Experience, types.MaxExperienceScore)
	b.Relevance = clampScore(b.Relevance, types.MaxRelevanceScore)
	b.Growth = clampScore(b.Growth, types.MaxGrowthScore)

	if total := b.Total(); total != int(eval.OverallScore) {
		s.logger.Warn().Int("overall", int(eval.OverallScore)).Int("breakdown_total", total).Msg("评分细项合计与总分不一致")
	}

	matched := make(map[string]struct{}, len(eval.SkillsMatched))
	for _, skill := range eval.SkillsMatched {
		matched[strings.ToLower(strings.TrimSpace(skill))] = struct{}{}
	}
	missing := make([]string, 0, len(eval.SkillsMissing))
	for _, skill := range eval.SkillsMissing {
		if _, ok := matched[strings.ToLower(strings.TrimSpace(skill))]; ok {
			continue
		}
		missing = append(missing, skill)
	}
	eval.SkillsMissing = missing

	if eval.SkillsMatched == nil {
		eval.SkillsMatched = []string{}
	}
	if eval.Concerns == nil {
		eval.Concerns = []string{}
	}
}

// BuildScoringPrompt 组装评分提示词
func BuildScoringPrompt(resumeText string, profile *types.CandidateProfile, job types.JobRequirements) string {
	title := job.Title
	if title == "" {
		title = "Unknown Position"
	}
	name := profile.Name
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf(scoringPromptTemplate,
		title,
		truncateRunes(job.Description, constants.ScorerDescriptionMaxChars),
		strings.Join(job.MustHaveSkills, ", "),
		strings.Join(job.NiceToHaveSkills, ", "),
		job.MinExperience,
		name,
		int(profile.ExperienceYears),
		strings.Join(profile.Skills, ", "),
		truncateRunes(resumeText, constants.ScorerResumeMaxChars),
	)
}

// FallbackEvaluation 评分输出不可用时的默认评估
func FallbackEvaluation(profile *types.CandidateProfile, job types.JobRequirements) *types.Evaluation {
	missing := append([]string{}, job.MustHaveSkills...)
	experience := 0
	if profile != nil {
		experience = int(profile.ExperienceYears)
	}
	return &types.Evaluation{
		OverallScore:        50,
		SkillsMatched:       []string{},
		SkillsMissing:       missing,
		ExperienceMatch:     experience >= job.MinExperience,
		Strengths:           []string{"Resume submitted"},
		Concerns:            []string{"Unable to fully evaluate"},
		Recommendation:      types.RecommendationMaybe,
		DetailedExplanation: "Automated evaluation encountered an error. Manual review recommended.",
		ScoreBreakdown: types.ScoreBreakdown{
			Skills:     20,
			Experience: 15,
			Relevance:  10,
			Growth:     5,
		},
	}
}

func clampScore(v types.FlexInt, limit int) types.FlexInt {
	if v < 0 {
		return 0
	}
	if int(v) > limit {
		return types.FlexInt(limit)
	}
	return v
}
