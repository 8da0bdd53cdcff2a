package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"sort"
	"sync"
)

type StrategyDAO struct {
	mu         sync.RWMutex
	strategies map[string]entity.Strategy
}

func NewStrategyDAO(seed ...entity.Strategy) *StrategyDAO {
	d := &StrategyDAO{strategies: make(map[string]entity.Strategy)}
	for _, s := range seed {
		d.strategies[s.ID] = s
	}
	return d
}

func (d *StrategyDAO) ListByAccount(_ context.Context, accountID string) ([]entity.Strategy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.Strategy
	for _, s := range d.strategies {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *StrategyDAO) FindByID(_ context.Context, id string) (*entity.Strategy, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.strategies[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return &s, nil
}

func (d *StrategyDAO) Save(_ context.Context, strategy *entity.Strategy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[strategy.ID] = *strategy
	return nil
}
