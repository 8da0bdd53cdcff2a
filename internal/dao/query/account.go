package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"errors"

	"gorm.io/gorm"
)

type AccountDAOImpl struct {
	db *gorm.DB
}

func NewAccountDAO(db *gorm.DB) dao.AccountDAO {
	return &AccountDAOImpl{db: db}
}

func (d *AccountDAOImpl) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	var acc entity.Account
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (d *AccountDAOImpl) ListActive(ctx context.Context) ([]entity.Account, error) {
	var list []entity.Account
	err := d.db.WithContext(ctx).Where("active = ?", true).Find(&list).Error
	return list, err
}
