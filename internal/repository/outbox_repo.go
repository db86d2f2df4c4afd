package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"wagerledger/internal/model"

	"github.com/google/uuid"
)

var ErrMessageNotFound = errors.New("消息不存在")

// DefaultOutboxCapacity 队列上限，超出后丢弃最旧的消息
const DefaultOutboxCapacity = 10000

// OutboxRepository 账本事件的内存发件箱
//
// 账本状态本身只在内存里，事件不需要与数据库同事务，
// 发送成功的消息直接出队，失败的保留到被挤出为止。
type OutboxRepository struct {
	mu       sync.Mutex
	messages []*model.OutboxMessage // 按入队顺序
	capacity int
	dropped  int64
	now      func() time.Time
}

func NewOutboxRepository(capacity int) *OutboxRepository {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	return &OutboxRepository{capacity: capacity, now: time.Now}
}

func (r *OutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = model.OutboxStatusPending
	m.CreatedAt = now
	m.UpdatedAt = now
	r.messages = append(r.messages, &m)
	msg.ID = m.ID

	if over := len(r.messages) - r.capacity; over > 0 {
		r.messages = append(r.messages[:0:0], r.messages[over:]...)
		r.dropped += int64(over)
	}
	return nil
}

// Publish 将事件序列化后入队
func (r *OutboxRepository) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Create(ctx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(body),
	})
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.list(ctx, model.OutboxStatusPending, limit)
}

func (r *OutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.list(ctx, model.OutboxStatusFailed, limit)
}

func (r *OutboxRepository) list(ctx context.Context, status string, limit int) ([]*model.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.OutboxMessage
	for _, m := range r.messages {
		if m.Status != status {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateStatus 标记为 SENT 时直接出队
func (r *OutboxRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	return r.update(ctx, id, func(i int, m *model.OutboxMessage) {
		if status == model.OutboxStatusSent {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
		m.Status = status
	})
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id string) error {
	return r.update(ctx, id, func(_ int, m *model.OutboxMessage) {
		m.RetryCount++
	})
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id string) error {
	return r.update(ctx, id, func(_ int, m *model.OutboxMessage) {
		m.Status = model.OutboxStatusFailed
	})
}

func (r *OutboxRepository) update(ctx context.Context, id string, fn func(i int, m *model.OutboxMessage)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.messages {
		if m.ID == id {
			m.UpdatedAt = r.now()
			fn(i, m)
			return nil
		}
	}
	return ErrMessageNotFound
}

// Len 队列中尚未出队的消息数
func (r *OutboxRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Dropped 因容量被挤出的消息数
func (r *OutboxRepository) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
