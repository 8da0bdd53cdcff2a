package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"errors"

	"gorm.io/gorm"
)

type ScheduledOrderDAOImpl struct {
	db *gorm.DB
}

func NewScheduledOrderDAO(db *gorm.DB) dao.ScheduledOrderDAO {
	return &ScheduledOrderDAOImpl{db: db}
}

func (d *ScheduledOrderDAOImpl) Create(ctx context.Context, order *entity.ScheduledOrder) error {
	return d.db.WithContext(ctx).Create(order).Error
}

func (d *ScheduledOrderDAOImpl) Update(ctx context.Context, order *entity.ScheduledOrder) error {
	return d.db.WithContext(ctx).Save(order).Error
}

func (d *ScheduledOrderDAOImpl) FindByID(ctx context.Context, id string) (*entity.ScheduledOrder, error) {
	var order entity.ScheduledOrder
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dao.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *ScheduledOrderDAOImpl) ListPending(ctx context.Context) ([]entity.ScheduledOrder, error) {
	var orders []entity.ScheduledOrder
	err := d.db.WithContext(ctx).
		Where("status = ?", string(model.ScheduledPending)).
		Order("execute_at ASC").
		Find(&orders).Error
	return orders, err
}
