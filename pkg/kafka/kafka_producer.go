package kafka

import (
	"context"
	"edgetrade/pkg/logger"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, topic string, key []byte, msg any) error
	Close()
}

type kafkaProducer struct {
	brokerURL string
	mu        sync.Mutex
	writers   map[string]*kafka.Writer // 每个 topic 一个 writer，懒加载
}

func NewKafkaProducer(brokerURL string) ProducerService {
	return &kafkaProducer{
		brokerURL: brokerURL,
		writers:   make(map[string]*kafka.Writer),
	}
}

func (p *kafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokerURL),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // 相同 key（账户）进入同一个 partition，保证账户内有序
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		}
		p.writers[topic] = w
	}
	return w
}

// Produce 通用方法：序列化 JSON 消息并写入 Kafka
func (p *kafkaProducer) Produce(ctx context.Context, topic string, key []byte, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: data,
	})
}

func (p *kafkaProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			logger.Errorf("Error closing kafka writer %s: %v", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
}
