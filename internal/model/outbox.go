package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 账本事件类型，写在消息体的 event 字段里
const (
	EventTransactionRequested = "transaction.requested"
	EventTransactionReviewed  = "transaction.reviewed"
	EventBalanceAdjusted      = "balance.adjusted"
	EventBetSettled           = "bet.settled"
)

// OutboxMessage 待投递到 Kafka 的账本事件
type OutboxMessage struct {
	ID         string    `json:"id"`
	MessageKey string    `json:"message_key"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
