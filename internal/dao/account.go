package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

type AccountDAO interface {
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	ListActive(ctx context.Context) ([]entity.Account, error)
}
