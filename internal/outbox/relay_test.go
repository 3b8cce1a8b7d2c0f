package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type published struct {
	exchange, routingKey, messageID string
	body                            string
	persistent                      bool
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []published
	failN map[string]error
}

func (p *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey, messageID string, body []byte, persistent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failN[messageID]; err != nil {
		return err
	}
	p.sent = append(p.sent, published{exchange, routingKey, messageID, string(body), persistent})
	return nil
}

func TestNewMessageRelayUsesConfig(t *testing.T) {
	r := NewMessageRelay(nil, &fakePublisher{}, &config.RabbitMQConfig{
		OutboxPollingInterval: "250ms",
		OutboxBatchSize:       50,
		OutboxMaxRetries:      3,
	}, nil)
	assert.Equal(t, 250*time.Millisecond, r.pollingInterval)
	assert.Equal(t, 50, r.batchSize)
	assert.Equal(t, 3, r.maxRetries)

	d := NewMessageRelay(nil, &fakePublisher{}, &config.RabbitMQConfig{OutboxPollingInterval: "bogus"}, nil)
	assert.Equal(t, defaultPollingInterval, d.pollingInterval, "无法解析的间隔应回退到默认值")
	assert.Equal(t, defaultBatchSize, d.batchSize)
	assert.Equal(t, defaultMaxRetries, d.maxRetries)
}

func TestApplyPublishResult(t *testing.T) {
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	msg := &models.OutboxMessage{Status: models.OutboxStatusPending, RetryCount: 0, ErrorMessage: "old"}
	applyPublishResult(msg, nil, 5, now)
	assert.Equal(t, models.OutboxStatusSent, msg.Status)
	require.NotNil(t, msg.ProcessedAt)
	assert.Equal(t, now, *msg.ProcessedAt)
	assert.Empty(t, msg.ErrorMessage)

	msg = &models.OutboxMessage{Status: models.OutboxStatusPending, RetryCount: 3}
	applyPublishResult(msg, errors.New("channel closed"), 5, now)
	assert.Equal(t, models.OutboxStatusPending, msg.Status, "未达到上限时保持 PENDING 等待重试")
	assert.Equal(t, 4, msg.RetryCount)
	assert.Equal(t, "channel closed", msg.ErrorMessage)
	assert.Nil(t, msg.ProcessedAt)

	applyPublishResult(msg, errors.New("channel closed"), 5, now)
	assert.Equal(t, models.OutboxStatusFailed, msg.Status, "达到上限后标记为 FAILED")
	assert.Equal(t, 5, msg.RetryCount)
}

func TestPublishAllPassesMessageID(t *testing.T) {
	pub := &fakePublisher{failN: map[string]error{"m-2": errors.New("nack")}}
	r := NewMessageRelay(nil, pub, nil, nil)

	messages := []models.OutboxMessage{
		{MessageID: "m-1", TargetExchange: "candidate.events.exchange", TargetRoutingKey: "candidate.screened", Payload: `{"a":1}`, Status: models.OutboxStatusPending},
		{MessageID: "m-2", TargetExchange: "candidate.events.exchange", TargetRoutingKey: "candidate.deleted", Payload: `{"b":2}`, Status: models.OutboxStatusPending},
	}
	r.publishAll(t.Context(), noop.Span{}, messages)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, published{"candidate.events.exchange", "candidate.screened", "m-1", `{"a":1}`, true}, pub.sent[0])
	assert.Equal(t, models.OutboxStatusSent, messages[0].Status)
	assert.Equal(t, models.OutboxStatusPending, messages[1].Status)
	assert.Equal(t, 1, messages[1].RetryCount)
	assert.Equal(t, "nack", messages[1].ErrorMessage)
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewMessageRelay(nil, &fakePublisher{}, &config.RabbitMQConfig{OutboxPollingInterval: "1h"}, nil)
	r.Start(t.Context())

	done := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop 未能及时返回")
	}
}
