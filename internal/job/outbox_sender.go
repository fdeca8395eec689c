package job

import (
	"context"
	"time"

	"saghat/internal/config"
	"saghat/internal/infrastructure/mq"
	"saghat/internal/metrics"
	"saghat/internal/model"
	"saghat/internal/repository"
	"saghat/pkg/logger"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox_message，把分配结果和缴款事件投递到 Kafka
// 投递失败累计重试次数，达到 business.max_retry_count 后标记为 FAILED
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	metrics    *metrics.Metrics
	log        zerolog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config, m *metrics.Metrics) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		metrics:    m,
		log:        logger.Component("OutboxSender"),
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info().Msg("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("查询消息失败")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.log.Error().Int64("id", msg.ID).Err(updateErr).Msg("更新消息状态失败")
			return
		}
		s.metrics.ObserveOutbox(metrics.OutboxResultSent)
		s.log.Debug().
			Int64("id", msg.ID).
			Str("event", msg.EventType).
			Str("topic", msg.Topic).
			Str("key", msg.MessageKey).
			Msg("消息发送成功")
		return
	}

	s.log.Warn().Int64("id", msg.ID).Err(err).Msg("消息发送失败")

	retry, recordErr := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount)
	if recordErr != nil {
		s.log.Error().Int64("id", msg.ID).Err(recordErr).Msg("记录重试次数失败")
		return
	}
	if retry >= s.cfg.Business.MaxRetryCount {
		s.metrics.ObserveOutbox(metrics.OutboxResultFailed)
		s.log.Error().Int64("id", msg.ID).Int("retry", retry).Msg("消息超过最大重试次数，标记为失败")
		return
	}
	s.metrics.ObserveOutbox(metrics.OutboxResultRetry)
}
