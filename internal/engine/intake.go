package engine

import (
	"context"
	"edgetrade/internal/model"
	"edgetrade/pkg/kafka"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/stream"

	"github.com/goccy/go-json"
)

// ConsumeSignals 从 kafka 消费外部信号，解析失败或校验失败的消息只记日志
func (e *Engine) ConsumeSignals(ctx context.Context, consumer kafka.ConsumerService, topic, groupID string) error {
	msgs, err := consumer.Consume(ctx, topic, groupID)
	if err != nil {
		return err
	}
	logger.Infof("[Engine] consuming signals from %s (group %s)", topic, groupID)
	for m := range msgs {
		var sig model.TradingSignal
		if err := json.Unmarshal(m.Value, &sig); err != nil {
			logger.Warnf("[Engine] bad signal message at offset %d: %v", m.Offset, err)
			continue
		}
		if _, err := e.SubmitSignal(sig); err != nil {
			logger.Warnf("[Engine] signal for %s dropped: %v", sig.Symbol, err)
		}
	}
	return ctx.Err()
}

// RunTickFeed 把 websocket 行情转成 Tick 交给信号处理器，listeners 在之前收到同一笔行情
func (e *Engine) RunTickFeed(ctx context.Context, client *stream.TickClient, listeners ...func(model.Tick)) error {
	return client.Run(ctx, func(m stream.TickMessage) {
		tick := model.Tick{
			Symbol:     m.Symbol,
			Price:      m.Price,
			Volume:     m.Volume,
			ChangeRate: m.ChangeRate,
			Timestamp:  m.Time(),
		}
		for _, fn := range listeners {
			fn(tick)
		}
		e.OnTick(tick)
	})
}
