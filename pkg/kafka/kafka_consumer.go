package kafka

import (
	"context"
	"edgetrade/pkg/logger"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Close()
}

type kafkaConsumer struct {
	brokerURL string
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
	}
}

// Consume 方法的核心逻辑
func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{c.brokerURL},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second, // 自动提交
		MaxAttempts:    3,
	})
	outputCh := make(chan kafka.Message, 256)

	go func() {
		defer close(outputCh)
		defer r.Close()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				// Context 被取消（服务关闭），正常退出
				if ctx.Err() != nil {
					return
				}
				logger.Errorf("[Kafka] read error on topic %s: %v", topic, err)
				time.Sleep(time.Second)
				continue
			}

			// 交易信号不能丢弃，通道满时阻塞等待消费
			select {
			case outputCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	return outputCh, nil
}

func (c *kafkaConsumer) Close() {
	logger.Infof("[Kafka] consumer service closing")
}
