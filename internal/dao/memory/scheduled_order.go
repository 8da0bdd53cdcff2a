package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"sort"
	"sync"
)

type ScheduledOrderDAO struct {
	mu     sync.RWMutex
	orders map[string]entity.ScheduledOrder
}

func NewScheduledOrderDAO() *ScheduledOrderDAO {
	return &ScheduledOrderDAO{orders: make(map[string]entity.ScheduledOrder)}
}

func (d *ScheduledOrderDAO) Create(_ context.Context, order *entity.ScheduledOrder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[order.ID] = *order
	return nil
}

func (d *ScheduledOrderDAO) Update(_ context.Context, order *entity.ScheduledOrder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.orders[order.ID]; !ok {
		return dao.ErrNotFound
	}
	d.orders[order.ID] = *order
	return nil
}

func (d *ScheduledOrderDAO) FindByID(_ context.Context, id string) (*entity.ScheduledOrder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.orders[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return &o, nil
}

func (d *ScheduledOrderDAO) ListPending(_ context.Context) ([]entity.ScheduledOrder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.ScheduledOrder
	for _, o := range d.orders {
		if o.Status == string(model.ScheduledPending) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}
