package mq

import (
	"fmt"

	"wagerledger/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Producer 消息投递
type Producer interface {
	SendMessage(topic, key, value string) error
	Close() error
}

// NewProducer 配置了 broker 时连接 Kafka，否则退回到只打日志
func NewProducer(cfg *config.KafkaConfig, log *zap.Logger) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("未配置 Kafka broker，账本事件只写日志")
		return NewLogProducer(log), nil
	}
	return NewKafkaProducer(cfg, log)
}

// ============================================================================
// Kafka
// ============================================================================

type KafkaProducer struct {
	producer sarama.SyncProducer
	log      *zap.Logger
}

func NewKafkaProducer(cfg *config.KafkaConfig, log *zap.Logger) (*KafkaProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Info("Kafka 生产者创建成功", zap.Strings("brokers", cfg.Brokers))
	return &KafkaProducer{producer: producer, log: log}, nil
}

// newKafkaProducerWith 用现成的 SyncProducer 构造，测试时传入 mocks
func newKafkaProducerWith(p sarama.SyncProducer, log *zap.Logger) *KafkaProducer {
	return &KafkaProducer{producer: p, log: log}
}

func (p *KafkaProducer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.log.Debug("[Kafka] 消息已投递",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}

// ============================================================================
// 日志
// ============================================================================

// LogProducer 没有 Kafka 时使用，消息写到日志里视为投递成功
type LogProducer struct {
	log *zap.Logger
}

func NewLogProducer(log *zap.Logger) *LogProducer {
	return &LogProducer{log: log}
}

func (p *LogProducer) SendMessage(topic, key, value string) error {
	p.log.Info("[Outbox] 账本事件",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("payload", value),
	)
	return nil
}

func (p *LogProducer) Close() error {
	return nil
}
