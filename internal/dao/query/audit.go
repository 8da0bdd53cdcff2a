package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"

	"gorm.io/gorm"
)

type AuditDAOImpl struct {
	db *gorm.DB
}

func NewAuditDAO(db *gorm.DB) dao.AuditDAO {
	return &AuditDAOImpl{db: db}
}

func (d *AuditDAOImpl) Create(ctx context.Context, log *entity.AuditLog) error {
	return d.db.WithContext(ctx).Create(log).Error
}

func (d *AuditDAOImpl) ListByAccount(ctx context.Context, accountID string, limit int) ([]entity.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []entity.AuditLog
	err := d.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
