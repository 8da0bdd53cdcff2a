package bus

import (
	"context"
	"edgetrade/pkg/logger"
	"sync"
	"sync/atomic"
	"time"
)

// AllTopics 订阅全部事件
const AllTopics = "*"

const defaultQueueSize = 256

// Event 总线上传递的事件，Key 一般是账户id
type Event struct {
	Topic   string
	Key     string
	Payload any
	At      time.Time
}

type Handler func(ctx context.Context, e Event)

// Publisher 组件只依赖发布能力
type Publisher interface {
	Publish(topic, key string, payload any)
}

type subscription struct {
	id      uint64
	name    string
	topic   string
	queue   *Queue
	handler Handler
	dropped atomic.Int64
}

// Bus 进程内 topic 发布订阅，每个订阅者独立的有界队列和消费协程，
// 慢订阅者只会丢自己的事件，不会阻塞发布方
type Bus struct {
	mu        sync.RWMutex
	subs      map[string][]*subscription
	nextID    uint64
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:      make(map[string][]*subscription),
		queueSize: queueSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe 注册订阅，返回取消函数
func (b *Bus) Subscribe(topic, name string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		name:    name,
		topic:   topic,
		queue:   NewQueue(b.queueSize),
		handler: handler,
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.queue.Run(b.ctx, func(e Event) {
			b.dispatch(sub, e)
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(sub)
			sub.queue.Close()
		})
	}
}

func (b *Bus) dispatch(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[EventBus] subscriber %s panic on %s: %v", sub.name, e.Topic, r)
		}
	}()
	sub.handler(b.ctx, e)
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Publish 非阻塞，订阅者队列满时丢弃并记录日志
func (b *Bus) Publish(topic, key string, payload any) {
	e := Event{Topic: topic, Key: key, Payload: payload, At: time.Now()}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs[topic])+len(b.subs[AllTopics]))
	targets = append(targets, b.subs[topic]...)
	if topic != AllTopics {
		targets = append(targets, b.subs[AllTopics]...)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.queue.TryPublish(e); err != nil {
			n := sub.dropped.Add(1)
			logger.Warnf("[EventBus] drop %s for %s: %v (dropped=%d)", topic, sub.name, err, n)
		}
	}
}

// Dropped 某个订阅者累计丢弃的事件数
func (b *Bus) Dropped(name string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, list := range b.subs {
		for _, s := range list {
			if s.name == name {
				total += s.dropped.Load()
			}
		}
	}
	return total
}

// Close 停止接收新事件，等待各订阅者处理完已入队的事件
func (b *Bus) Close() {
	b.mu.Lock()
	var all []*subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[string][]*subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.queue.Close()
	}
	b.wg.Wait()
	b.cancel()
}
