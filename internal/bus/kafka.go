package bus

import (
	"context"
	"edgetrade/pkg/kafka"
	"edgetrade/pkg/logger"
	"time"
)

// envelope 发往 kafka 的事件结构
type envelope struct {
	Topic   string    `json:"topic"`
	Key     string    `json:"key"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// ForwardToKafka 把总线上所有事件镜像到 kafka，topic 为 prefix+事件名
func ForwardToKafka(b *Bus, producer kafka.ProducerService, prefix string) func() {
	return b.Subscribe(AllTopics, "kafka-forwarder", func(ctx context.Context, e Event) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		msg := envelope{Topic: e.Topic, Key: e.Key, At: e.At, Payload: e.Payload}
		if err := producer.Produce(ctx, prefix+e.Topic, []byte(e.Key), msg); err != nil {
			logger.Errorf("[EventBus] forward %s to kafka failed: %v", e.Topic, err)
		}
	})
}
