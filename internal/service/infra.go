package service

import (
	"context"

	"wagerledger/internal/apperr"
	"wagerledger/internal/config"
	"wagerledger/internal/infrastructure/lock"
	"wagerledger/internal/model"

	"go.uber.org/zap"
)

// Persister 接收"某部分状态已变化"的通知，落盘是异步的，不能阻塞调用方
type Persister interface {
	MarkDirty(records ...model.SnapshotRecord)
}

// EventPublisher 账本事件出口，通常是发件箱
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Infra 各服务共享的基础设施，零值字段使用空实现
type Infra struct {
	Locker    lock.Locker
	Events    EventPublisher
	Persister Persister
	Logger    *zap.Logger
	Topics    config.KafkaTopicConfig
}

func (i Infra) withDefaults() Infra {
	if i.Locker == nil {
		i.Locker = lock.NewLocalLocker()
	}
	if i.Events == nil {
		i.Events = noopPublisher{}
	}
	if i.Persister == nil {
		i.Persister = NoopPersister{}
	}
	if i.Logger == nil {
		i.Logger = zap.NewNop()
	}
	return i
}

// NoopPersister 不落盘
type NoopPersister struct{}

func (NoopPersister) MarkDirty(...model.SnapshotRecord) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

// lockAccount 获取账户锁，失败时统一包装成内部错误
func (i Infra) lockAccount(ctx context.Context, accountID string) (func(), error) {
	release, err := i.Locker.Acquire(ctx, lock.AccountLockKey(accountID))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "系统繁忙，请稍后重试", err)
	}
	return release, nil
}

// publish 事件投递失败只记日志，不影响已经完成的账本操作
func (i Infra) publish(ctx context.Context, topic, key string, payload interface{}) {
	if err := i.Events.Publish(context.WithoutCancel(ctx), topic, key, payload); err != nil {
		i.Logger.Warn("[Outbox] 事件入队失败",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func requireNonEmpty(field, value string) error {
	if value == "" {
		return apperr.Newf(apperr.KindValidation, "%s 不能为空", field)
	}
	return nil
}
