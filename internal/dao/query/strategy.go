package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"errors"

	"gorm.io/gorm"
)

type StrategyDAOImpl struct {
	db *gorm.DB
}

func NewStrategyDAO(db *gorm.DB) dao.StrategyDAO {
	return &StrategyDAOImpl{db: db}
}

func (d *StrategyDAOImpl) ListByAccount(ctx context.Context, accountID string) ([]entity.Strategy, error) {
	var list []entity.Strategy
	err := d.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at ASC").Find(&list).Error
	return list, err
}

func (d *StrategyDAOImpl) FindByID(ctx context.Context, id string) (*entity.Strategy, error) {
	var s entity.Strategy
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *StrategyDAOImpl) Save(ctx context.Context, strategy *entity.Strategy) error {
	return d.db.WithContext(ctx).Save(strategy).Error
}
