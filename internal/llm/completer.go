package llm

import (
	"context"
	"fmt"
	"time"

	"talent-match/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// Completer 单轮文本补全能力：发送完整的提示词，返回模型的文本输出
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc 允许把普通函数当作 Completer 使用
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete 调用函数本身
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ChatCompleter 基于 eino ChatModel 的 Completer 实现
type ChatCompleter struct {
	chatModel    model.BaseChatModel
	modelName    string
	systemPrompt string
	temperature  *float32
	maxTokens    int
	timeout      time.Duration
	logger       *zerolog.Logger
}

// ChatCompleterOption 配置 ChatCompleter
type ChatCompleterOption func(*ChatCompleter)

// WithTemperature 设置采样温度
func WithTemperature(t float32) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.temperature = &t
	}
}

// WithModel 覆盖底层 ChatModel 的默认模型，空字符串不生效
func WithModel(name string) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.modelName = name
	}
}

// WithMaxTokens 设置最大输出 token 数
func WithMaxTokens(n int) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.maxTokens = n
	}
}

// WithTimeout 设置单次调用超时，超时即失败，不会自动重试
func WithTimeout(d time.Duration) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.timeout = d
	}
}

// WithSystemPrompt 附加一条系统消息
func WithSystemPrompt(p string) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.systemPrompt = p
	}
}

// WithLogger 设置日志记录器
func WithLogger(l *zerolog.Logger) ChatCompleterOption {
	return func(c *ChatCompleter) {
		c.logger = l
	}
}

// NewChatCompleter 创建 ChatCompleter
func NewChatCompleter(chatModel model.BaseChatModel, opts ...ChatCompleterOption) *ChatCompleter {
	c := &ChatCompleter{chatModel: chatModel}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNop(c.logger)
	return c
}

// Complete 发送单条用户消息并返回助手回复的文本
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if c.chatModel == nil {
		return "", fmt.Errorf("未配置语言模型")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(c.systemPrompt))
	}
	messages = append(messages, schema.UserMessage(prompt))

	var opts []model.Option
	if c.modelName != "" {
		opts = append(opts, model.WithModel(c.modelName))
	}
	if c.temperature != nil {
		opts = append(opts, model.WithTemperature(*c.temperature))
	}
	if c.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("LLM调用失败: %w", err)
	}
	if resp == nil {
		return "", nil
	}

	c.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("prompt_chars", len(prompt)).
		Int("response_chars", len(resp.Content)).
		Msg("LLM调用完成")
	return resp.Content, nil
}
