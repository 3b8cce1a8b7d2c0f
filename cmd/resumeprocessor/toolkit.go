package main

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/llm"
	"talent-match/internal/logger"
	"talent-match/internal/parser"
	"talent-match/internal/types"
	"talent-match/pkg/ratelimit"
)

// toolkit 离线检查用的流水线组件，按需创建
type toolkit struct {
	cfg       *config.Config
	extractor *parser.TextExtractor
}

func newToolkit(cfg *config.Config) *toolkit {
	return &toolkit{cfg: cfg}
}

type extractOutput struct {
	Filename  string `json:"filename"`
	Chars     int    `json:"chars"`
	Elapsed   string `json:"elapsed"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

type parseOutput struct {
	Filename string                  `json:"filename"`
	Profile  *types.CandidateProfile `json:"profile"`
}

type scoreOutput struct {
	Filename   string                  `json:"filename"`
	Job        types.JobRequirements   `json:"job"`
	Profile    *types.CandidateProfile `json:"profile"`
	Evaluation *types.Evaluation       `json:"evaluation"`
}

type embedOutput struct {
	Filename   string    `json:"filename"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	InputChars int       `json:"input_chars"`
	Preview    []float32 `json:"preview"`
}

func (t *toolkit) text(ctx context.Context, filename string, content []byte) (string, error) {
	if t.extractor == nil {
		pdf, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(logger.Component("pdf")))
		if err != nil {
			return "", fmt.Errorf("创建PDF提取器失败: %w", err)
		}
		t.extractor = parser.NewTextExtractor(pdf, parser.WithExtractorLogger(logger.Component("extractor")))
	}
	return t.extractor.ExtractText(ctx, filename, content)
}

// completer 创建指定任务的补全器，QPM 为正数时包一层限流
func (t *toolkit) completer(task string, temperature float32) (llm.Completer, error) {
	chatModel, err := llm.NewOpenAIChatModel(llm.OpenAIChatConfig{
		APIKey:    t.cfg.LLM.APIKey,
		BaseURL:   t.cfg.LLM.BaseURL,
		Model:     t.cfg.LLM.Model,
		MaxTokens: t.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return llm.NewChatCompleter(ratelimit.WrapIfLimited(chatModel, t.cfg.LLM.QPM),
		llm.WithModel(t.cfg.GetModelForTask(task)),
		llm.WithTemperature(temperature),
		llm.WithMaxTokens(t.cfg.LLM.MaxTokens),
		llm.WithTimeout(config.GetDuration(t.cfg.LLM.Timeout, 60*time.Second)),
		llm.WithLogger(logger.Component("llm")),
	), nil
}

func (t *toolkit) extract(ctx context.Context, filename string, content []byte, maxLen int) (*extractOutput, error) {
	start := time.Now()
	text, err := t.text(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	out := &extractOutput{
		Filename: filename,
		Chars:    utf8.RuneCountInString(text),
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		Text:     text,
	}
	if maxLen >= 0 && out.Chars > maxLen {
		out.Text = string([]rune(text)[:maxLen])
		out.Truncated = true
	}
	return out, nil
}

func (t *toolkit) profile(ctx context.Context, filename string, content []byte) (string, *types.CandidateProfile, error) {
	text, err := t.text(ctx, filename, content)
	if err != nil {
		return "", nil, err
	}
	c, err := t.completer("parser", 0)
	if err != nil {
		return "", nil, err
	}
	profile, err := parser.NewProfileParser(c, logger.Component("parser")).Parse(ctx, text)
	if err != nil {
		return "", nil, err
	}
	profile.Normalize()
	return text, profile, nil
}

func (t *toolkit) parse(ctx context.Context, filename string, content []byte) (*parseOutput, error) {
	_, profile, err := t.profile(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	return &parseOutput{Filename: filename, Profile: profile}, nil
}

func (t *toolkit) score(ctx context.Context, filename string, content []byte, job types.JobRequirements) (*scoreOutput, error) {
	text, profile, err := t.profile(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	c, err := t.completer("scorer", 0.3)
	if err != nil {
		return nil, err
	}
	eval, err := parser.NewCandidateScorer(c, logger.Component("scorer")).Score(ctx, text, profile, job)
	if err != nil {
		return nil, err
	}
	return &scoreOutput{Filename: filename, Job: job, Profile: profile, Evaluation: eval}, nil
}

func (t *toolkit) embed(ctx context.Context, filename string, content []byte) (*embedOutput, error) {
	text, profile, err := t.profile(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	embedder, err := parser.NewOpenAIEmbedder(t.cfg.Embedding, parser.WithEmbedderLogger(logger.Component("embedding")))
	if err != nil {
		return nil, fmt.Errorf("初始化向量模型失败: %w", err)
	}
	input := parser.BuildCandidateEmbeddingText(profile, text, constants.EmbeddingResumeChars)
	vector, err := embedder.EmbedText(ctx, input)
	if err != nil {
		return nil, err
	}
	return &embedOutput{
		Filename:   filename,
		Model:      t.cfg.Embedding.Model,
		Dimensions: len(vector),
		InputChars: utf8.RuneCountInString(input),
		Preview:    vector[:min(8, len(vector))],
	}, nil
}

// loadJob 根据命令行参数组装岗位要求，未给出必备技能时由模型从职位描述中抽取
func loadJob(ctx context.Context, t *toolkit) (types.JobRequirements, error) {
	job := types.JobRequirements{
		Title:            *jobTitle,
		MustHaveSkills:   trimAll(*mustSkills),
		NiceToHaveSkills: trimAll(*niceSkills),
		MinExperience:    max(*minExp, 0),
	}
	if *jobFile != "" {
		data, err := os.ReadFile(*jobFile)
		if err != nil {
			return job, fmt.Errorf("读取职位描述失败: %w", err)
		}
		job.Description = string(data)
	}
	if len(job.MustHaveSkills) > 0 || job.Description == "" {
		return job, nil
	}

	c, err := t.completer("requirements", 0)
	if err != nil {
		return job, err
	}
	req, err := parser.NewRequirementsExtractor(c, logger.Component("requirements")).Extract(ctx, job.Description)
	if err != nil {
		return job, fmt.Errorf("抽取职位要求失败: %w", err)
	}
	job.MustHaveSkills = req.MustHaveSkills
	if len(job.NiceToHaveSkills) == 0 {
		job.NiceToHaveSkills = req.NiceToHaveSkills
	}
	if job.MinExperience == 0 {
		job.MinExperience = int(req.MinExperience)
	}
	return job, nil
}
