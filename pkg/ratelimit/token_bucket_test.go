package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"talent-match/internal/llm"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	current := time.Now()
	tb.now = func() time.Time { return current }
	tb.lastRefillTime = current

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "桶容量耗尽后应拒绝")

	// QPM=60 即每秒 1 个令牌
	current = current.Add(time.Second)
	assert.True(t, tb.Allow(), "一秒后应补充一个令牌")
	assert.False(t, tb.Allow())
}

func TestTokenBucketWaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitedChatModelDoesNotRetry(t *testing.T) {
	mock := llm.NewMockChatModel("", errors.New("503 overloaded"))
	limited := NewRateLimitedChatModel(mock, 600)

	_, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("x")})
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount(), "失败的调用不应被自动重试")
}

func TestWrapIfLimited(t *testing.T) {
	mock := llm.NewMockChatModel("ok", nil)
	assert.Same(t, mock, WrapIfLimited(mock, 0))
	_, isProxy := WrapIfLimited(mock, 30).(*RateLimitedChatModel)
	assert.True(t, isProxy)
}
