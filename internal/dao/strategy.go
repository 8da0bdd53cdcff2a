package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

type StrategyDAO interface {
	ListByAccount(ctx context.Context, accountID string) ([]entity.Strategy, error)
	FindByID(ctx context.Context, id string) (*entity.Strategy, error)
	Save(ctx context.Context, strategy *entity.Strategy) error
}
