package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"errors"

	"gorm.io/gorm"
)

type SessionDAOImpl struct {
	db *gorm.DB
}

func NewSessionDAO(db *gorm.DB) dao.SessionDAO {
	return &SessionDAOImpl{db: db}
}

func (d *SessionDAOImpl) Create(ctx context.Context, session *entity.TradingSession) error {
	return d.db.WithContext(ctx).Create(session).Error
}

func (d *SessionDAOImpl) Update(ctx context.Context, session *entity.TradingSession) error {
	return d.db.WithContext(ctx).Save(session).Error
}

func (d *SessionDAOImpl) FindActive(ctx context.Context, accountID string) (*entity.TradingSession, error) {
	var session entity.TradingSession
	err := d.db.WithContext(ctx).
		Where("account_id = ? AND status <> ?", accountID, string(model.SessionStopped)).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *SessionDAOImpl) ListActive(ctx context.Context) ([]entity.TradingSession, error) {
	var sessions []entity.TradingSession
	err := d.db.WithContext(ctx).
		Where("status <> ?", string(model.SessionStopped)).
		Find(&sessions).Error
	return sessions, err
}
