package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockResponse 定义了 MockChatModel 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 是一个用于测试的 model.ToolCallingChatModel 模拟实现，可并发调用
type MockChatModel struct {
	mu sync.Mutex

	// 固定响应
	ExpectedResponse string
	ExpectedError    error

	// 顺序响应，耗尽后返回错误
	SequentialResponses []MockResponse
	responseIndex       int
	isSequential        bool

	// Responder 根据输入动态生成响应，优先级最高
	Responder func(messages []*schema.Message) (string, error)

	receivedMessages [][]*schema.Message
	receivedOptions  []*model.Options
}

var _ model.ToolCallingChatModel = (*MockChatModel)(nil)

// NewMockChatModel 创建一个返回固定响应的 MockChatModel
func NewMockChatModel(expectedResponse string, expectedError error) *MockChatModel {
	return &MockChatModel{
		ExpectedResponse: expectedResponse,
		ExpectedError:    expectedError,
	}
}

// NewMockChatModelSequential 创建一个按顺序返回不同响应的 MockChatModel
func NewMockChatModelSequential(responses []MockResponse) *MockChatModel {
	if len(responses) == 0 {
		responses = []MockResponse{{Error: errors.New("mock model has no responses configured")}}
	}
	return &MockChatModel{
		SequentialResponses: responses,
		isSequential:        true,
	}
}

// Generate 模拟 LLM 的 Generate 方法
func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	received := make([]*schema.Message, len(input))
	copy(received, input)
	m.receivedMessages = append(m.receivedMessages, received)
	m.receivedOptions = append(m.receivedOptions, model.GetCommonOptions(&model.Options{}, opts...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.Responder != nil {
		content, err := m.Responder(input)
		if err != nil {
			return nil, err
		}
		return schema.AssistantMessage(content, nil), nil
	}

	if m.isSequential {
		if m.responseIndex >= len(m.SequentialResponses) {
			return nil, errors.New("mock model has run out of sequential responses")
		}
		resp := m.SequentialResponses[m.responseIndex]
		m.responseIndex++
		if resp.Error != nil {
			return nil, resp.Error
		}
		return schema.AssistantMessage(resp.Content, nil), nil
	}

	if m.ExpectedError != nil {
		return nil, m.ExpectedError
	}
	return schema.AssistantMessage(m.ExpectedResponse, nil), nil
}

// Stream 模拟 LLM 的 Stream 方法，返回只包含一条消息的流
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 模拟绑定工具的方法
func (m *MockChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

// WithTools 返回自身，模拟模型不区分是否绑定工具
func (m *MockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// CallCount 返回 Generate 被调用的次数
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receivedMessages)
}

// LastPrompt 返回最近一次调用中最后一条消息的内容
func (m *MockChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.receivedMessages) == 0 {
		return ""
	}
	last := m.receivedMessages[len(m.receivedMessages)-1]
	if len(last) == 0 {
		return ""
	}
	return last[len(last)-1].Content
}

// LastOptions 返回最近一次调用的选项
func (m *MockChatModel) LastOptions() *model.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.receivedOptions) == 0 {
		return nil
	}
	return m.receivedOptions[len(m.receivedOptions)-1]
}
