package dao

import (
	"context"
	"edgetrade/internal/model/entity"
)

// SessionDAO 自动交易会话
type SessionDAO interface {
	Create(ctx context.Context, session *entity.TradingSession) error
	Update(ctx context.Context, session *entity.TradingSession) error
	// FindActive 账户当前未停止的会话，没有返回 ErrNotFound
	FindActive(ctx context.Context, accountID string) (*entity.TradingSession, error)
	// ListActive 所有未停止的会话，用于进程重启后恢复
	ListActive(ctx context.Context) ([]entity.TradingSession, error)
}
