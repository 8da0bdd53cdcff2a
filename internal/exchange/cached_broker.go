package exchange

import (
	"context"
	"edgetrade/internal/model"
	"edgetrade/pkg/logger"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	quoteKeyPrefix = "edgetrade:quote:"
	quoteTTL       = time.Second
)

// CachedBroker 行情缓存到 redis，同一标的并发请求合并为一次
type CachedBroker struct {
	Broker
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedBroker(inner Broker, rdb *redis.Client) *CachedBroker {
	return &CachedBroker{Broker: inner, rdb: rdb, ttl: quoteTTL}
}

func (c *CachedBroker) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	key := quoteKeyPrefix + symbol
	if c.rdb != nil {
		if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			var q model.Quote
			if err := json.Unmarshal(data, &q); err == nil {
				return &q, nil
			}
		} else if err != redis.Nil {
			logger.Debugf("[QuoteCache] redis get %s: %v", key, err)
		}
	}

	v, err, _ := c.group.Do(symbol, func() (any, error) {
		q, err := c.Broker.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if c.rdb != nil {
			if data, err := json.Marshal(q); err == nil {
				if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
					logger.Debugf("[QuoteCache] redis set %s: %v", key, err)
				}
			}
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	q := *v.(*model.Quote)
	return &q, nil
}

var _ Broker = (*CachedBroker)(nil)
