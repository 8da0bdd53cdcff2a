package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"sync"
)

type SessionDAO struct {
	mu       sync.RWMutex
	sessions map[string]entity.TradingSession
}

func NewSessionDAO() *SessionDAO {
	return &SessionDAO{sessions: make(map[string]entity.TradingSession)}
}

func (d *SessionDAO) Create(_ context.Context, session *entity.TradingSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[session.ID] = *session
	return nil
}

func (d *SessionDAO) Update(_ context.Context, session *entity.TradingSession) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[session.ID]; !ok {
		return dao.ErrNotFound
	}
	d.sessions[session.ID] = *session
	return nil
}

func (d *SessionDAO) FindActive(_ context.Context, accountID string) (*entity.TradingSession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sessions {
		if s.AccountID == accountID && s.Status != string(model.SessionStopped) {
			return &s, nil
		}
	}
	return nil, dao.ErrNotFound
}

func (d *SessionDAO) ListActive(_ context.Context) ([]entity.TradingSession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.TradingSession
	for _, s := range d.sessions {
		if s.Status != string(model.SessionStopped) {
			out = append(out, s)
		}
	}
	return out, nil
}
