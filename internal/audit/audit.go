package audit

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/recorder"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// 审计分类
const (
	CategoryRisk        = "RISK"
	CategoryBreaker     = "CIRCUIT_BREAKER"
	CategoryOrder       = "ORDER"
	CategorySession     = "SESSION"
	CategoryLiquidation = "LIQUIDATION"
	CategorySmartOrder  = "SMART_ORDER"
)

type Entry struct {
	AccountID string         `json:"accountId"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Severity  model.Severity `json:"severity,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	At        time.Time      `json:"at"`
}

// Trail 审计记录，写失败只记日志，不影响交易流程
type Trail interface {
	Record(ctx context.Context, e Entry)
}

type daoTrail struct {
	dao dao.AuditDAO
}

// NewDAOTrail 写入 audit_logs 表
func NewDAOTrail(d dao.AuditDAO) Trail {
	return &daoTrail{dao: d}
}

func (t *daoTrail) Record(ctx context.Context, e Entry) {
	stamp(&e)
	var details datatypes.JSON
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			logger.Warnf("[Audit] marshal details failed: %v", err)
		} else {
			details = datatypes.JSON(data)
		}
	}
	err := t.dao.Create(ctx, &entity.AuditLog{
		AccountID: e.AccountID,
		Category:  e.Category,
		Action:    e.Action,
		Severity:  string(e.Severity),
		Message:   e.Message,
		Details:   details,
		CreatedAt: e.At,
	})
	if err != nil {
		logger.Errorf("[Audit] persist %s/%s for %s failed: %v", e.Category, e.Action, e.AccountID, err)
	}
}

type fileTrail struct {
	rec *recorder.JSONFileRecorder
}

// NewFileTrail 按行写 JSON 文件，模拟盘使用
func NewFileTrail(path string) Trail {
	return &fileTrail{rec: recorder.NewJSONFileRecorder(path)}
}

func (t *fileTrail) Record(_ context.Context, e Entry) {
	stamp(&e)
	if err := t.rec.Record(e); err != nil {
		logger.Errorf("[Audit] write %s failed: %v", t.rec.Path, err)
	}
}

type logTrail struct{}

// NewLogTrail 只输出到日志
func NewLogTrail() Trail {
	return logTrail{}
}

func (logTrail) Record(_ context.Context, e Entry) {
	fields := []zap.Field{
		logger.Pair("account", e.AccountID),
		logger.Pair("category", e.Category),
		logger.Pair("action", e.Action),
	}
	if e.Severity != "" {
		fields = append(fields, logger.Pair("severity", string(e.Severity)))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	logger.Info("[Audit] "+e.Message, fields...)
}

type multiTrail []Trail

// Multi 同时写多个后端
func Multi(trails ...Trail) Trail {
	return multiTrail(trails)
}

func (m multiTrail) Record(ctx context.Context, e Entry) {
	stamp(&e)
	for _, t := range m {
		t.Record(ctx, e)
	}
}

func stamp(e *Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
}
