package storage

import (
	"encoding/json"
	"testing"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRabbitConfig() *config.RabbitMQConfig {
	return &config.RabbitMQConfig{
		CandidateEventsExchange: "candidate.events.exchange",
		ScreenedRoutingKey:      "candidate.screened",
		DeletedRoutingKey:       "candidate.deleted",
	}
}

func TestScreenedOutbox(t *testing.T) {
	c := &models.Candidate{ID: 12, TenantID: "acme", JobID: 3, Name: "Alice", MatchScore: 81, Recommendation: "hire", ResumeObjectKey: "acme/3/x.pdf"}

	msg, err := ScreenedOutbox(testRabbitConfig())(c)
	require.NoError(t, err)

	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, "12", msg.AggregateID)
	assert.Equal(t, "acme", msg.TenantID)
	assert.Equal(t, "candidate.events.exchange", msg.TargetExchange)
	assert.Equal(t, "candidate.screened", msg.TargetRoutingKey)
	assert.Len(t, msg.MessageID, 36)

	var event CandidateScreenedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, msg.MessageID, event.MessageID, "消息ID应与载荷一致")
	assert.Equal(t, constants.EventCandidateScreened, event.EventType)
	assert.Equal(t, 81, event.MatchScore)
	assert.Equal(t, "acme/3/x.pdf", event.ObjectKey)
}

func TestDeletedOutboxWithoutMapping(t *testing.T) {
	c := &models.Candidate{ID: 5, TenantID: "acme", JobID: 1}
	build := DeletedOutbox(testRabbitConfig())

	msg, err := build(c, nil)
	require.NoError(t, err)
	assert.Equal(t, "candidate.deleted", msg.TargetRoutingKey)

	var event CandidateDeletedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Empty(t, event.VectorID)

	msg, err = build(c, &models.CandidateVector{VectorID: "candidate_5"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, "candidate_5", event.VectorID)
}

func TestResumeObjectKey(t *testing.T) {
	key := ResumeObjectKey("acme", 3, "CV Final.PDF")
	assert.Regexp(t, `^acme/3/[0-9a-f-]{36}\.pdf$`, key)
	assert.NotEqual(t, key, ResumeObjectKey("acme", 3, "CV Final.PDF"), "每次上传应生成新的对象键")
}
