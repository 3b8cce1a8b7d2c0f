package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompleterPassesOptions(t *testing.T) {
	mock := NewMockChatModel(`{"ok":true}`, nil)
	c := NewChatCompleter(mock, WithTemperature(0.3), WithMaxTokens(512), WithSystemPrompt("你是招聘专家"))

	out, err := c.Complete(context.Background(), "评估候选人")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "评估候选人", mock.LastPrompt())

	opts := mock.LastOptions()
	require.NotNil(t, opts)
	require.NotNil(t, opts.Temperature, "温度参数应被传递")
	assert.InDelta(t, 0.3, float64(*opts.Temperature), 1e-6)
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, 512, *opts.MaxTokens)
	assert.Nil(t, opts.Model, "未指定模型时沿用 ChatModel 的默认值")

	scoped := NewChatCompleter(mock, WithModel("llama-3.1-70b-versatile"))
	_, err = scoped.Complete(context.Background(), "抽取职位要求")
	require.NoError(t, err)
	require.NotNil(t, mock.LastOptions().Model)
	assert.Equal(t, "llama-3.1-70b-versatile", *mock.LastOptions().Model)
}

func TestChatCompleterWrapsTransportError(t *testing.T) {
	transportErr := errors.New("connection refused")
	c := NewChatCompleter(NewMockChatModel("", transportErr))

	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, transportErr)
}

func TestChatCompleterTimeout(t *testing.T) {
	mock := &MockChatModel{Responder: func([]*schema.Message) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "late", nil
	}}
	c := NewChatCompleter(mock, WithTimeout(time.Nanosecond))

	_, err := c.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "超时的上下文应直接失败")
}

func TestMockChatModelSequential(t *testing.T) {
	mock := NewMockChatModelSequential([]MockResponse{{Content: "first"}, {Error: errors.New("boom")}})

	msg, err := mock.Generate(context.Background(), []*schema.Message{schema.UserMessage("a")})
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)

	_, err = mock.Generate(context.Background(), []*schema.Message{schema.UserMessage("b")})
	assert.EqualError(t, err, "boom")

	_, err = mock.Generate(context.Background(), []*schema.Message{schema.UserMessage("c")})
	assert.Error(t, err, "响应耗尽后应返回错误")
	assert.Equal(t, 3, mock.CallCount())
}

// TestOpenAIChatModelGenerate 使用 httptest 模拟兼容 OpenAI 协议的服务
func TestOpenAIChatModelGenerate(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"name\":\"Jane\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	chatModel, err := NewOpenAIChatModel(OpenAIChatConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)

	c := NewChatCompleter(chatModel, WithTemperature(0))
	out, err := c.Complete(context.Background(), "parse this")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Jane"}`, out)

	assert.Equal(t, "test-model", captured["model"])
	assert.Equal(t, float64(0), captured["temperature"], "温度为 0 时也应显式发送")
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestOpenAIChatModelServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer server.Close()

	chatModel, err := NewOpenAIChatModel(OpenAIChatConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = chatModel.Generate(context.Background(), []*schema.Message{schema.UserMessage("x")})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "不应自动重试")
}

func TestNewOpenAIChatModelRequiresKey(t *testing.T) {
	_, err := NewOpenAIChatModel(OpenAIChatConfig{})
	assert.Error(t, err)
}

func TestOpenAIChatModelRejectsTools(t *testing.T) {
	m, err := NewOpenAIChatModel(OpenAIChatConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)

	same, err := m.WithTools(nil)
	require.NoError(t, err, "空工具列表不应报错")
	assert.Same(t, m, same)

	_, err = m.WithTools([]*schema.ToolInfo{{Name: "get_weather", Desc: "查询天气"}})
	require.ErrorIs(t, err, ErrToolsUnsupported, "绑定工具应明确报错而不是静默忽略")
}
