package memory

import (
	"context"
	"edgetrade/internal/model/entity"
	"sync"
)

type AuditDAO struct {
	mu     sync.RWMutex
	nextID uint64
	logs   []entity.AuditLog
}

func NewAuditDAO() *AuditDAO {
	return &AuditDAO{}
}

func (d *AuditDAO) Create(_ context.Context, log *entity.AuditLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	log.ID = d.nextID
	d.logs = append(d.logs, *log)
	return nil
}

// ListByAccount 最新的在前
func (d *AuditDAO) ListByAccount(_ context.Context, accountID string, limit int) ([]entity.AuditLog, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.AuditLog
	for i := len(d.logs) - 1; i >= 0; i-- {
		if d.logs[i].AccountID != accountID {
			continue
		}
		out = append(out, d.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
