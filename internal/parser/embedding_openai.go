package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/tracing"
	"talent-match/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var embeddingTracer = otel.Tracer("talent-match/parser/embedding")

// TextEmbedder 供检索与入库流程使用的向量生成能力
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// OpenAIEmbedder 通过 OpenAI 兼容的 /embeddings 接口生成向量，实现 eino embedding.Embedder
type OpenAIEmbedder struct {
	client         *openai.Client
	model          string
	dimensions     int
	sendDimensions bool
	timeout        time.Duration
	logger         *zerolog.Logger
}

// OpenAIEmbedderOption 配置 OpenAIEmbedder
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithSendDimensions 在请求中携带 dimensions 参数，仅部分服务端支持
func WithSendDimensions(send bool) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.sendDimensions = send
	}
}

// WithEmbedderLogger 设置日志记录器
func WithEmbedderLogger(l *zerolog.Logger) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.logger = l
	}
}

// NewOpenAIEmbedder 根据配置创建向量生成器
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, opts ...OpenAIEmbedderOption) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API密钥不能为空")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding 维度必须大于0, 当前为 %d", cfg.Dimensions)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(clientOpts...)

	e := &OpenAIEmbedder{
		client:     &client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    config.GetDuration(cfg.Timeout, 30*time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.OrNop(e.logger)
	return e, nil
}

// Dimensions 返回输出向量的维度
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model 返回使用的模型名
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// EmbedStrings 批量生成向量，输出顺序与输入一致
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	options := embedding.GetCommonOptions(&embedding.Options{Model: &e.model}, opts...)
	modelName := e.model
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	ctx, span := embeddingTracer.Start(ctx, "embedding.embed_strings")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", modelName),
		attribute.Int("embedding.batch_size", len(texts)),
	)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(modelName),
	}
	if e.sendDimensions {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	start := time.Now()
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			tracing.RecordHTTPError(span, err, apiErr.StatusCode)
		} else {
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}

	if len(resp.Data) != len(texts) {
		err := fmt.Errorf("%w: 返回向量数量 %d 与输入数量 %d 不一致", types.ErrEmbedding, len(resp.Data), len(texts))
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float64, len(data))
	for i, item := range data {
		if int(item.Index) != i {
			err := fmt.Errorf("%w: 返回的向量序号不连续 (期望 %d, 实际 %d)", types.ErrEmbedding, i, item.Index)
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return nil, err
		}
		if len(item.Embedding) != e.dimensions {
			err := fmt.Errorf("%w: 向量维度 %d 与配置的 %d 不一致", types.ErrEmbedding, len(item.Embedding), e.dimensions)
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return nil, err
		}
		vectors[i] = item.Embedding
	}

	e.logger.Debug().
		Int("batch_size", len(texts)).
		Dur("elapsed", time.Since(start)).
		Msg("向量生成完成")
	return vectors, nil
}

// EmbedText 生成单条文本的向量
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: 文本为空", types.ErrEmbedding)
	}
	vectors, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return ToFloat32(vectors[0]), nil
}

// ToFloat32 把 float64 向量转换为 float32
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// BuildCandidateEmbeddingText 拼接候选人用于向量化的文本：姓名、摘要、技能与简历开头部分
func BuildCandidateEmbeddingText(profile *types.CandidateProfile, resumeText string, resumeChars int) string {
	parts := make([]string, 0, 4)
	if profile != nil {
		if profile.Name != "" {
			parts = append(parts, profile.Name)
		}
		if profile.Summary != "" {
			parts = append(parts, profile.Summary)
		}
		if len(profile.Skills) > 0 {
			parts = append(parts, "Skills: "+strings.Join(profile.Skills, ", "))
		}
	}
	if prefix := strings.TrimSpace(truncateRunes(resumeText, resumeChars)); prefix != "" {
		parts = append(parts, prefix)
	}
	return strings.Join(parts, "\n")
}
