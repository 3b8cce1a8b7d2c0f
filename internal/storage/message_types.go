package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/constants"
	"talent-match/internal/storage/models"

	"github.com/google/uuid"
)

// CandidateScreenedEvent 候选人完成筛选并入库
type CandidateScreenedEvent struct {
	MessageID      string    `json:"message_id"`
	EventType      string    `json:"event_type"`
	TenantID       string    `json:"tenant_id"`
	CandidateID    uint64    `json:"candidate_id"`
	JobID          uint64    `json:"job_id"`
	Name           string    `json:"name"`
	MatchScore     int       `json:"match_score"`
	Recommendation string    `json:"recommendation"`
	ObjectKey      string    `json:"object_key,omitempty"` // MinIO中的原始简历
	OccurredAt     time.Time `json:"occurred_at"`
}

// CandidateDeletedEvent 候选人记录被删除
type CandidateDeletedEvent struct {
	MessageID   string    `json:"message_id"`
	EventType   string    `json:"event_type"`
	TenantID    string    `json:"tenant_id"`
	CandidateID uint64    `json:"candidate_id"`
	JobID       uint64    `json:"job_id"`
	VectorID    string    `json:"vector_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ScreenedOutbox 返回构造 candidate.screened 出站消息的函数
func ScreenedOutbox(cfg *config.RabbitMQConfig) OutboxBuilder {
	return func(c *models.Candidate) (*models.OutboxMessage, error) {
		event := CandidateScreenedEvent{
			MessageID:      uuid.NewString(),
			EventType:      constants.EventCandidateScreened,
			TenantID:       c.TenantID,
			CandidateID:    c.ID,
			JobID:          c.JobID,
			Name:           c.Name,
			MatchScore:     c.MatchScore,
			Recommendation: c.Recommendation,
			ObjectKey:      c.ResumeObjectKey,
			OccurredAt:     time.Now().UTC(),
		}
		return newOutboxMessage(event.MessageID, c.TenantID, c.ID, event.EventType, cfg.CandidateEventsExchange, cfg.ScreenedRoutingKey, event)
	}
}

// DeletedOutbox 返回构造 candidate.deleted 出站消息的函数
func DeletedOutbox(cfg *config.RabbitMQConfig) DeleteOutboxBuilder {
	return func(c *models.Candidate, mapping *models.CandidateVector) (*models.OutboxMessage, error) {
		event := CandidateDeletedEvent{
			MessageID:   uuid.NewString(),
			EventType:   constants.EventCandidateDeleted,
			TenantID:    c.TenantID,
			CandidateID: c.ID,
			JobID:       c.JobID,
			OccurredAt:  time.Now().UTC(),
		}
		if mapping != nil {
			event.VectorID = mapping.VectorID
		}
		return newOutboxMessage(event.MessageID, c.TenantID, c.ID, event.EventType, cfg.CandidateEventsExchange, cfg.DeletedRoutingKey, event)
	}
}

func newOutboxMessage(messageID, tenantID string, candidateID uint64, eventType, exchange, routingKey string, event any) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化事件失败: %w", err)
	}
	return &models.OutboxMessage{
		MessageID:        messageID,
		TenantID:         tenantID,
		AggregateID:      strconv.FormatUint(candidateID, 10),
		EventType:        eventType,
		Payload:          string(payload),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
