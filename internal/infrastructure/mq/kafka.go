package mq

import (
	"fmt"

	"saghat/internal/config"

	"github.com/IBM/sarama"
)

// Publisher 消息投递接口，OutboxSender 只依赖它
type Publisher interface {
	SendMessage(topic, key, value string) error
	Close() error
}

// KafkaPublisher 基于 sarama 同步生产者
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaConfig 生产者配置：等待所有副本确认、重试 3 次、开启幂等
func NewKafkaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求
	return kafkaConfig
}

// NewKafkaPublisher 连接 Kafka
func NewKafkaPublisher(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return NewPublisherWithProducer(producer), nil
}

// NewPublisherWithProducer 便于注入 mock 生产者
func NewPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// SendMessage 同一 key（分配单号 / 缴款单号）落在同一分区，保证顺序
func (p *KafkaPublisher) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher 未启用 Kafka 时使用，消息视为已发送
type NopPublisher struct{}

func (NopPublisher) SendMessage(topic, key, value string) error { return nil }

func (NopPublisher) Close() error { return nil }
