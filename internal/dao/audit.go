package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

type AuditDAO interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]entity.AuditLog, error)
}
