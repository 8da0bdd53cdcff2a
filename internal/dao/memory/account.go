package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"sync"
)

type AccountDAO struct {
	mu       sync.RWMutex
	accounts map[string]entity.Account
}

func NewAccountDAO(seed ...entity.Account) *AccountDAO {
	d := &AccountDAO{accounts: make(map[string]entity.Account)}
	for _, a := range seed {
		d.accounts[a.ID] = a
	}
	return d
}

func (d *AccountDAO) FindByID(_ context.Context, id string) (*entity.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return &a, nil
}

func (d *AccountDAO) ListActive(_ context.Context) ([]entity.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.Account
	for _, a := range d.accounts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// Put 新增或覆盖账户
func (d *AccountDAO) Put(acc entity.Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[acc.ID] = acc
}

var (
	_ dao.AccountDAO        = (*AccountDAO)(nil)
	_ dao.StrategyDAO       = (*StrategyDAO)(nil)
	_ dao.RiskLimitDAO      = (*RiskLimitDAO)(nil)
	_ dao.SessionDAO        = (*SessionDAO)(nil)
	_ dao.AuditDAO          = (*AuditDAO)(nil)
	_ dao.ScheduledOrderDAO = (*ScheduledOrderDAO)(nil)
	_ dao.TradeDAO          = (*TradeDAO)(nil)
)
