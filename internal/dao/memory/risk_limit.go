package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"sync"
)

type RiskLimitDAO struct {
	mu     sync.RWMutex
	limits map[string]entity.RiskLimit
}

func NewRiskLimitDAO() *RiskLimitDAO {
	return &RiskLimitDAO{limits: make(map[string]entity.RiskLimit)}
}

func (d *RiskLimitDAO) Get(_ context.Context, accountID string) (*entity.RiskLimit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.limits[accountID]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return &l, nil
}

func (d *RiskLimitDAO) Save(_ context.Context, limit *entity.RiskLimit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.limits[limit.AccountID] = *limit
	return nil
}
