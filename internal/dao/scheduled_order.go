package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

// ScheduledOrderDAO 预约单
type ScheduledOrderDAO interface {
	Create(ctx context.Context, order *entity.ScheduledOrder) error
	Update(ctx context.Context, order *entity.ScheduledOrder) error
	FindByID(ctx context.Context, id string) (*entity.ScheduledOrder, error)
	// ListPending 所有待执行的预约单，按执行时间升序
	ListPending(ctx context.Context) ([]entity.ScheduledOrder, error)
}
