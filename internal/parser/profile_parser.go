package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"talent-match/internal/constants"
	"talent-match/internal/llm"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var parserTracer = otel.Tracer("talent-match/parser/profile")

const profilePromptTemplate = `Extract structured information from this resume. Be precise and only extract information that is clearly stated.

RESUME TEXT:
%s

Return a JSON object with the following structure:
{
    "name": "Full name of the candidate",
    "email": "Email address",
    "phone": "Phone number",
    "location": "City, State/Country",
    "summary": "Brief professional summary (2-3 sentences)",
    "skills": ["skill1", "skill2", "skill3", ...],
    "experience_years": total_years_as_integer,
    "education": [
        {
            "degree": "Degree name",
            "institution": "University/College name",
            "year": "Graduation year"
        }
    ],
    "work_experience": [
        {
            "title": "Job title",
            "company": "Company name",
            "duration": "Duration (e.g., 2020-2023)",
            "description": "Brief description of responsibilities"
        }
    ],
    "certifications": ["cert1", "cert2", ...]
}

CRITICAL EXTRACTION RULES:
1. NAME: Extract the full name as it appears, with proper spacing.
   - CORRECT: "Ahmed Ali Khan" or "Muhammad Aman"
   - WRONG: "A H M E D  A L I  K H A N" or "AHMED ALI KHAN"
   - If name has spaces between each letter, remove them and format properly

2. EMAIL: Extract email address exactly as written, without any special characters or symbols.
   - Remove any icons, symbols, or decorative characters before/after email

3. PHONE: Extract phone number with proper formatting
   - Remove any icons or symbols
   - Keep only numbers and standard separators (+ - () space)

4. If a field is not found, use null or empty array
5. For experience_years, calculate total years from work history
6. Extract ALL technical skills mentioned
7. Be accurate with names and dates

Return ONLY the JSON object, no additional text or explanations.`

// ProfileParser 调用语言模型把简历文本解析为候选人档案
type ProfileParser struct {
	completer llm.Completer
	logger    *zerolog.Logger
}

// NewProfileParser 创建解析器。completer 应配置为温度 0。
func NewProfileParser(completer llm.Completer, l *zerolog.Logger) *ProfileParser {
	return &ProfileParser{completer: completer, logger: logger.OrNop(l)}
}

// Parse 解析简历文本。
// 模型调用失败返回 types.ErrParsing；模型输出无法解码时返回降级档案且不报错。
func (p *ProfileParser) Parse(ctx context.Context, resumeText string) (*types.CandidateProfile, error) {
	ctx, span := parserTracer.Start(ctx, "parser.parse_profile")
	defer span.End()
	span.SetAttributes(attribute.Int("resume.length", len(resumeText)))

	prompt := BuildProfilePrompt(resumeText)
	reply, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("%w: %v", types.ErrParsing, err)
	}

	var profile types.CandidateProfile
	if err := decodeModelJSON(reply, &profile); err != nil {
		p.logger.Warn().
			Err(err).
			Str("response", tracing.TruncateString(reply, 300)).
			Msg("简历解析结果无法解码，使用降级档案")
		tracing.RecordDegraded(span, "profile_parser", err.Error())
		return FallbackProfile(resumeText), nil
	}

	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		profile.Name = "Unknown"
	}
	profile.Normalize()

	p.logger.Info().Str("candidate", profile.Name).Int("skills", len(profile.Skills)).Msg("简历解析完成")
	return &profile, nil
}

// BuildProfilePrompt 组装解析提示词，简历按字符截断
func BuildProfilePrompt(resumeText string) string {
	return fmt.Sprintf(profilePromptTemplate, truncateRunes(resumeText, constants.ParserPromptMaxChars))
}

// FallbackProfile 模型输出不可用时的最小档案
func FallbackProfile(resumeText string) *types.CandidateProfile {
	profile := &types.CandidateProfile{
		Name:    "Unknown",
		Summary: truncateRunes(resumeText, constants.FallbackSummaryChars),
	}
	profile.Normalize()
	return profile
}

// IsMalformedResponse 判断错误是否源于模型输出格式不正确
func IsMalformedResponse(err error) bool {
	return errors.Is(err, errMalformedJSON)
}
