package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

type RiskLimitDAO interface {
	// Get 没有覆盖配置时返回 ErrNotFound
	Get(ctx context.Context, accountID string) (*entity.RiskLimit, error)
	Save(ctx context.Context, limit *entity.RiskLimit) error
}
