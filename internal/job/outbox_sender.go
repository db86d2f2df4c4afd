package job

import (
	"context"
	"time"

	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/infrastructure/mq"
	"wagerledger/internal/model"
	"wagerledger/internal/repository"

	"go.uber.org/zap"
)

// OutboxSender 把发件箱里的账本事件投递到消息队列
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	producer      mq.Producer
	log           *zap.Logger
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
}

func NewOutboxSender(outboxRepo *repository.OutboxRepository, producer mq.Producer, interval time.Duration, maxRetryCount int, log *zap.Logger) *OutboxSender {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if maxRetryCount <= 0 {
		maxRetryCount = 5
	}
	return &OutboxSender{
		outboxRepo:    outboxRepo,
		producer:      producer,
		log:           log,
		stopCh:        make(chan struct{}),
		interval:      interval,
		batchSize:     100,
		maxRetryCount: maxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 退出前把已经入队的消息再发一轮
			s.processPendingMessages(context.Background())
			s.log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("[OutboxSender] 任务停止")
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
		s.log.Warn("[OutboxSender] 查询消息失败", zap.Error(err))
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.log.Warn("[OutboxSender] 更新消息状态失败", zap.String("id", msg.ID), zap.Error(updateErr))
			return
		}
		metrics.OutboxMessages.WithLabelValues("sent").Inc()
		s.log.Debug("[OutboxSender] 消息发送成功",
			zap.String("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey),
		)
		return
	}

	metrics.OutboxMessages.WithLabelValues("error").Inc()
	s.log.Warn("[OutboxSender] 消息发送失败", zap.String("id", msg.ID), zap.Error(err))

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.log.Warn("[OutboxSender] 增加重试次数失败", zap.String("id", msg.ID), zap.Error(err))
	}

	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			s.log.Warn("[OutboxSender] 标记消息失败状态失败", zap.String("id", msg.ID), zap.Error(err))
		} else {
			metrics.OutboxMessages.WithLabelValues("failed").Inc()
			s.log.Error("[OutboxSender] 消息超过最大重试次数，标记为失败", zap.String("id", msg.ID))
		}
	}
}
