package main

import (
	"context"
	"fmt"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/llm"
	"talent-match/internal/logger"
	"talent-match/internal/parser"
	"talent-match/internal/processor"
	"talent-match/internal/storage"
	"talent-match/pkg/ratelimit"
)

// newPipeline 根据配置创建提取、解析、评分与向量组件
func newPipeline(ctx context.Context, cfg *config.Config, s *storage.Storage) ([]processor.ComponentOpt, error) {
	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(logger.Component("pdf")))
	if err != nil {
		return nil, fmt.Errorf("创建PDF提取器失败: %w", err)
	}
	extractor := parser.NewTextExtractor(pdfExtractor, parser.WithExtractorLogger(logger.Component("extractor")))

	chatModel, err := llm.NewOpenAIChatModel(llm.OpenAIChatConfig{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化语言模型失败: %w", err)
	}
	// 所有任务共享同一个令牌桶
	limited := ratelimit.WrapIfLimited(chatModel, cfg.LLM.QPM)
	timeout := config.GetDuration(cfg.LLM.Timeout, 60*time.Second)
	llmLogger := logger.Component("llm")

	completer := func(task string, temperature float32) llm.Completer {
		return llm.NewChatCompleter(limited,
			llm.WithModel(cfg.GetModelForTask(task)),
			llm.WithTemperature(temperature),
			llm.WithMaxTokens(cfg.LLM.MaxTokens),
			llm.WithTimeout(timeout),
			llm.WithLogger(llmLogger),
		)
	}

	opts := []processor.ComponentOpt{
		processor.WithExtractor(extractor),
		processor.WithParser(parser.NewProfileParser(completer("parser", 0), logger.Component("parser"))),
		processor.WithScorer(parser.NewCandidateScorer(completer("scorer", 0.3), logger.Component("scorer"))),
		processor.WithRequirementsExtractor(parser.NewRequirementsExtractor(completer("requirements", 0), logger.Component("requirements"))),
	}

	embedder, err := parser.NewOpenAIEmbedder(cfg.Embedding, parser.WithEmbedderLogger(logger.Component("embedding")))
	if err != nil {
		// 没有向量模型时仍可筛选简历，只是不写入人才库
		logger.Warn().Err(err).Msg("初始化向量模型失败，语义检索不可用")
		return opts, nil
	}

	// 只缓存检索查询，简历向量直接写入索引
	var cache parser.EmbeddingCache
	if s.Redis != nil {
		cache = s.Redis
	}
	cached := parser.NewCachedEmbedder(embedder, cache, cfg.Embedding.Model,
		config.GetDuration(cfg.Embedding.CacheTTL, 0), logger.Component("embedding-cache"))
	return append(opts, processor.WithEmbedder(embedder), processor.WithQueryEmbedder(cached)), nil
}
