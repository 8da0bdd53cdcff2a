package engine

import (
	"context"
	"edgetrade/internal/audit"
	"edgetrade/internal/consts"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 同时评估的策略数上限
const evaluationConcurrency = 8

type session struct {
	model.TradingSession
	stop context.CancelFunc
}

func (s *session) stopLoop() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

func (s *session) toEntity() *entity.TradingSession {
	return &entity.TradingSession{
		ID:          s.ID,
		AccountID:   s.AccountID,
		StrategyIDs: s.StrategyIDs,
		Status:      string(s.Status),
		StartedAt:   s.StartedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// StartAutoTrading 校验：没有进行中的会话、熔断器未打开、策略都处于运行状态。
// strategyIDs 为空时使用账户下所有运行中的策略
func (e *Engine) StartAutoTrading(ctx context.Context, accountID string, strategyIDs []string) (*model.TradingSession, error) {
	if accountID == "" {
		return nil, errors.Validation("accountId is required")
	}
	e.mu.Lock()
	if s, ok := e.active[accountID]; ok {
		e.mu.Unlock()
		return nil, errors.Conflict("auto-trading already %s for account %s", s.Status, accountID)
	}
	e.mu.Unlock()

	if st := e.breaker.Status(accountID); st.State == model.BreakerOpen {
		return nil, errors.Rejected("circuit breaker is OPEN: %s", st.TripReason)
	}
	strategies, err := e.orchestrator.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool)
	for _, s := range strategies {
		running[s.ID] = s.Status == model.StrategyRunning
	}
	if len(strategyIDs) == 0 {
		for _, s := range strategies {
			if running[s.ID] {
				strategyIDs = append(strategyIDs, s.ID)
			}
		}
	}
	for _, id := range strategyIDs {
		if !running[id] {
			return nil, errors.Validation("strategy %s is not active", id)
		}
	}

	now := e.clock.Now()
	s := &session{TradingSession: model.TradingSession{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		StrategyIDs: append([]string{}, strategyIDs...),
		Status:      model.SessionRunning,
		StartedAt:   now,
		UpdatedAt:   now,
	}}

	e.mu.Lock()
	if _, ok := e.active[accountID]; ok {
		e.mu.Unlock()
		return nil, errors.Conflict("auto-trading already started for account %s", accountID)
	}
	e.active[accountID] = s
	e.mu.Unlock()

	if e.sessions != nil {
		if err := e.sessions.Create(ctx, s.toEntity()); err != nil {
			e.mu.Lock()
			delete(e.active, accountID)
			e.mu.Unlock()
			return nil, err
		}
	}

	e.mu.Lock()
	e.startLoop(s)
	out := s.TradingSession
	e.mu.Unlock()
	e.sessionChanged(ctx, out, "START")
	return &out, nil
}

// StopAutoTrading 停止评估并结束会话
func (e *Engine) StopAutoTrading(ctx context.Context, accountID string) (*model.TradingSession, error) {
	e.mu.Lock()
	s, ok := e.active[accountID]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("no auto-trading session for account %s", accountID)
	}
	s.stopLoop()
	s.Status = model.SessionStopped
	s.UpdatedAt = e.clock.Now()
	delete(e.active, accountID)
	out := s.TradingSession
	e.mu.Unlock()

	if e.sessions != nil {
		row := s.toEntity()
		stopped := out.UpdatedAt
		row.StoppedAt = &stopped
		if err := e.sessions.Update(ctx, row); err != nil {
			logger.Errorf("[Engine] persist stopped session %s failed: %v", out.ID, err)
		}
	}
	e.sessionChanged(ctx, out, "STOP")
	return &out, nil
}

// PauseAutoTrading 暂停定时评估，会话保留
func (e *Engine) PauseAutoTrading(ctx context.Context, accountID string) (*model.TradingSession, error) {
	return e.transition(ctx, accountID, model.SessionRunning, model.SessionPaused, "PAUSE")
}

// ResumeAutoTrading 恢复定时评估，熔断器打开时不允许恢复
func (e *Engine) ResumeAutoTrading(ctx context.Context, accountID string) (*model.TradingSession, error) {
	if st := e.breaker.Status(accountID); st.State == model.BreakerOpen {
		return nil, errors.Rejected("circuit breaker is OPEN: %s", st.TripReason)
	}
	return e.transition(ctx, accountID, model.SessionPaused, model.SessionRunning, "RESUME")
}

func (e *Engine) transition(ctx context.Context, accountID string, from, to model.SessionStatus, action string) (*model.TradingSession, error) {
	e.mu.Lock()
	s, ok := e.active[accountID]
	if !ok {
		e.mu.Unlock()
		return nil, errors.NotFound("no auto-trading session for account %s", accountID)
	}
	if s.Status != from {
		e.mu.Unlock()
		return nil, errors.Conflict("session for account %s is %s", accountID, s.Status)
	}
	s.Status = to
	s.UpdatedAt = e.clock.Now()
	if to == model.SessionRunning {
		e.startLoop(s)
	} else {
		s.stopLoop()
	}
	out := s.TradingSession
	e.mu.Unlock()

	if e.sessions != nil {
		if err := e.sessions.Update(ctx, s.toEntity()); err != nil {
			logger.Errorf("[Engine] persist session %s failed: %v", out.ID, err)
		}
	}
	e.sessionChanged(ctx, out, action)
	return &out, nil
}

// Session 账户当前会话
func (e *Engine) Session(accountID string) (*model.TradingSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.active[accountID]
	if !ok {
		return nil, errors.NotFound("no auto-trading session for account %s", accountID)
	}
	out := s.TradingSession
	return &out, nil
}

func (e *Engine) sessionRunning(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.active[accountID]
	return ok && s.Status == model.SessionRunning
}

// Restore 进程重启后恢复库里未停止的会话
func (e *Engine) Restore(ctx context.Context) error {
	if e.sessions == nil {
		return nil
	}
	rows, err := e.sessions.ListActive(ctx)
	if err != nil && !stderrors.Is(err, dao.ErrNotFound) {
		return err
	}
	for _, row := range rows {
		if _, err := e.orchestrator.Load(ctx, row.AccountID); err != nil {
			logger.Warnf("[Engine] load strategies for %s failed: %v", row.AccountID, err)
		}
		s := &session{TradingSession: model.TradingSession{
			ID:          row.ID,
			AccountID:   row.AccountID,
			StrategyIDs: append([]string{}, row.StrategyIDs...),
			Status:      model.SessionStatus(row.Status),
			StartedAt:   row.StartedAt,
			UpdatedAt:   row.UpdatedAt,
		}}
		e.mu.Lock()
		if _, ok := e.active[row.AccountID]; !ok {
			e.active[row.AccountID] = s
			if s.Status == model.SessionRunning {
				e.startLoop(s)
			}
		}
		e.mu.Unlock()
		logger.Infof("[Engine] restored %s session %s for account %s", s.Status, s.ID, s.AccountID)
	}
	return nil
}

func (e *Engine) sessionChanged(ctx context.Context, s model.TradingSession, action string) {
	logger.Infof("[Engine] session %s for account %s: %s -> %s", s.ID, s.AccountID, action, s.Status)
	e.trail.Record(ctx, audit.Entry{
		AccountID: s.AccountID,
		Category:  audit.CategorySession,
		Action:    action,
		Message:   "auto-trading " + string(s.Status),
		Details:   map[string]any{"sessionId": s.ID, "strategyIds": s.StrategyIDs},
	})
	if e.bus != nil {
		e.bus.Publish(consts.TopicSessionChanged, s.AccountID, &s)
	}
}

// startLoop 调用方持有 e.mu
func (e *Engine) startLoop(s *session) {
	s.stopLoop()
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	accountID := s.AccountID
	strategies := append([]string{}, s.StrategyIDs...)
	ticker := e.clock.Ticker(e.cfg.EvaluationInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Evaluate(ctx, accountID, strategies)
			}
		}
	}()
}

// Evaluate 并发取出各策略（以及未标记策略）的待处理信号，合并后交给编排器做冲突处理
func (e *Engine) Evaluate(ctx context.Context, accountID string, strategyIDs []string) []model.OrderIntent {
	keys := append([]string{""}, strategyIDs...)
	var (
		mu      sync.Mutex
		batch   []*model.TradingSignal
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(evaluationConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if key != "" {
				if s, ok := e.orchestrator.Strategy(key); ok && s.Status != model.StrategyRunning {
					return nil
				}
			}
			taken := e.signals.Take(accountID, key)
			if len(taken) == 0 {
				return nil
			}
			mu.Lock()
			batch = append(batch, taken...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil
	}
	if len(batch) == 0 {
		return nil
	}
	logger.Debugf("[Engine] account %s evaluation: %d signals", accountID, len(batch))
	return e.orchestrator.HandleSignals(ctx, batch...)
}
