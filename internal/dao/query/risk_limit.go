package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"errors"

	"gorm.io/gorm"
)

type RiskLimitDAOImpl struct {
	db *gorm.DB
}

func NewRiskLimitDAO(db *gorm.DB) dao.RiskLimitDAO {
	return &RiskLimitDAOImpl{db: db}
}

func (d *RiskLimitDAOImpl) Get(ctx context.Context, accountID string) (*entity.RiskLimit, error) {
	var limit entity.RiskLimit
	err := d.db.WithContext(ctx).Where("account_id = ?", accountID).First(&limit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &limit, nil
}

// Save 不存在则插入
func (d *RiskLimitDAOImpl) Save(ctx context.Context, limit *entity.RiskLimit) error {
	return d.db.WithContext(ctx).Save(limit).Error
}
