package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talent-match/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var llmTracer = otel.Tracer("talent-match/llm")

const defaultChatModel = "openai/gpt-oss-20b"

// OpenAIChatModel 基于 openai-go 的 eino ChatModel 实现。
// 兼容 OpenAI 协议的服务 (Groq、OpenAI、vLLM 等) 都可以通过 BaseURL 接入。
type OpenAIChatModel struct {
	client    *openai.Client
	modelName string
	maxTokens int
}

var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)

// OpenAIChatConfig OpenAIChatModel 的配置
type OpenAIChatConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAIChatModel 创建 OpenAIChatModel。
// SDK 内置的重试被关闭，超时和重试由调用方决定。
func NewOpenAIChatModel(cfg OpenAIChatConfig) (*OpenAIChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM API 密钥不能为空")
	}
	modelName := cfg.Model
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultChatModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)
	return &OpenAIChatModel{
		client:    &client,
		modelName: modelName,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// ModelName 返回默认模型名
func (m *OpenAIChatModel) ModelName() string {
	return m.modelName
}

// Generate 实现 model.BaseChatModel 接口
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Model: &m.modelName}, opts...)
	modelName := m.modelName
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	ctx, span := llmTracer.Start(ctx, "llm.chat_completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", modelName),
			attribute.Int("llm.message_count", len(input)),
		))
	defer span.End()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: toOpenAIMessages(input),
	}
	maxTokens := m.maxTokens
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
		span.SetAttributes(attribute.Float64("llm.temperature", float64(*options.Temperature)))
	}
	if options.TopP != nil {
		params.TopP = openai.Float(float64(*options.TopP))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			tracing.RecordHTTPError(span, err, apiErr.StatusCode)
		} else {
			tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		}
		return nil, fmt.Errorf("chat completion 请求失败 (model=%s): %w", modelName, err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("chat completion 响应中没有 choices")
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}

	choice := resp.Choices[0]
	span.SetAttributes(
		attribute.String("llm.finish_reason", string(choice.FinishReason)),
		attribute.Int64("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int64("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
	)

	msg := schema.AssistantMessage(choice.Message.Content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return msg, nil
}

// Stream 以单条消息的形式返回完整回复，本服务只使用同步调用
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// ErrToolsUnsupported 本服务只做 JSON 补全，不向模型发送工具定义
var ErrToolsUnsupported = errors.New("OpenAIChatModel 不支持工具调用")

// WithTools 不支持绑定工具，传入空列表时返回原实例
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		return nil, fmt.Errorf("%w: 收到 %d 个工具", ErrToolsUnsupported, len(tools))
	}
	return m, nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case schema.Tool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}
