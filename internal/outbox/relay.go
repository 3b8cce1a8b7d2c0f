package outbox // 发件箱模式：候选人事件与业务数据同事务落库，再由中继异步发布

import (
	"context"
	"sync"
	"time"

	"talent-match/internal/config"
	"talent-match/internal/logger"
	"talent-match/internal/storage"
	"talent-match/internal/storage/models"
	"talent-match/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second // 默认轮询 outbox 表的间隔
	defaultBatchSize       = 10              // 每次轮询处理的消息数
	defaultMaxRetries      = 5               // 发布失败的最大重试次数
)

// MessageRelay 轮询 outbox 表并将消息发布到消息代理。
type MessageRelay struct {
	db              *gorm.DB
	publisher       storage.MessagePublisher
	logger          *zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	done            chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	tracer          trace.Tracer
}

// NewMessageRelay 创建中继，轮询间隔、批量大小与重试次数取自配置，缺省时使用默认值
func NewMessageRelay(db *gorm.DB, publisher storage.MessagePublisher, cfg *config.RabbitMQConfig, l *zerolog.Logger) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.OrNop(l),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      defaultMaxRetries,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
	if cfg != nil {
		r.pollingInterval = config.GetDuration(cfg.OutboxPollingInterval, defaultPollingInterval)
		if cfg.OutboxBatchSize > 0 {
			r.batchSize = cfg.OutboxBatchSize
		}
		if cfg.OutboxMaxRetries > 0 {
			r.maxRetries = cfg.OutboxMaxRetries
		}
	}
	return r
}

// Start 在后台开始轮询，ctx 取消或调用 Stop 后退出
func (r *MessageRelay) Start(ctx context.Context) {
	r.logger.Info().
		Dur("interval", r.pollingInterval).
		Int("batch_size", r.batchSize).
		Msg("出站消息中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.logger.Info().Msg("出站消息中继已停止")
				return
			case <-ctx.Done():
				r.logger.Info().Msg("出站消息中继随上下文退出")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(ctx); err != nil {
					r.logger.Error().Err(err).Msg("处理待发布消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待正在处理的批次结束
func (r *MessageRelay) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("出站消息中继正在停止")
		close(r.done)
	})
	r.wg.Wait()
}

// processPendingMessages 获取并处理一批待发布消息。
// FOR UPDATE SKIP LOCKED 保证多实例部署时同一条消息只被一个中继拾取。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		r.logger.Error().Err(err).Msg("查询待发布消息失败")
		return err
	}

	// 空轮询不创建Span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("拾取待发布消息")
	r.publishAll(ctx, span, messages)

	for i := range messages {
		if err := tx.Save(&messages[i]).Error; err != nil {
			// 整个事务回滚，消息保持 PENDING，下次轮询重新拾取
			r.logger.Error().Err(err).Uint64("outbox_id", messages[i].ID).Msg("更新出站消息状态失败")
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return err
		}
	}
	return tx.Commit().Error
}

// publishAll 逐条发布并就地更新消息状态
func (r *MessageRelay) publishAll(ctx context.Context, span trace.Span, messages []models.OutboxMessage) {
	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, msg.MessageID, []byte(msg.Payload), true)
		applyPublishResult(msg, err, r.maxRetries, time.Now())
		if err != nil {
			r.logger.Warn().Err(err).
				Str("message_id", msg.MessageID).
				Str("event_type", msg.EventType).
				Int("retry_count", msg.RetryCount).
				Str("status", msg.Status).
				Msg("发布出站消息失败")
			tracing.RecordPublishFailure(span, msg.MessageID, err, msg.RetryCount)
		}
	}
}

// applyPublishResult 根据发布结果更新消息：成功标记为 SENT，失败累计重试次数，达到上限标记为 FAILED
func applyPublishResult(msg *models.OutboxMessage, err error, maxRetries int, now time.Time) {
	if err != nil {
		msg.RetryCount++
		msg.ErrorMessage = err.Error()
		if msg.RetryCount >= maxRetries {
			msg.Status = models.OutboxStatusFailed
		}
		return
	}
	msg.Status = models.OutboxStatusSent
	msg.ProcessedAt = &now
	msg.ErrorMessage = ""
}
