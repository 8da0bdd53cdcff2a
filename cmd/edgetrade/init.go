package api

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/audit"
	"edgetrade/internal/breaker"
	"edgetrade/internal/bus"
	"edgetrade/internal/dao"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/dao/query"
	"edgetrade/internal/engine"
	"edgetrade/internal/exchange"
	"edgetrade/internal/execution"
	"edgetrade/internal/handler/trading"
	"edgetrade/internal/model"
	"edgetrade/internal/position"
	"edgetrade/internal/risk"
	"edgetrade/internal/router"
	"edgetrade/internal/signal"
	"edgetrade/internal/strategy"
	"edgetrade/internal/trade"
	"edgetrade/pkg/kafka"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/security"
	"edgetrade/pkg/stream"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 事件总线每个订阅者的队列长度
const busQueueSize = 1024

type daos struct {
	accounts  dao.AccountDAO
	audits    dao.AuditDAO
	limits    dao.RiskLimitDAO
	trades    dao.TradeDAO
	strategy  dao.StrategyDAO
	sessions  dao.SessionDAO
	scheduled dao.ScheduledOrderDAO
}

// 没有数据库时退回内存实现，只用于本地模拟盘
func newDAOs(db *gorm.DB) daos {
	if db == nil {
		logger.Warn("[Init] no database, using in-memory storage")
		return daos{
			accounts:  memory.NewAccountDAO(),
			audits:    memory.NewAuditDAO(),
			limits:    memory.NewRiskLimitDAO(),
			trades:    memory.NewTradeDAO(),
			strategy:  memory.NewStrategyDAO(),
			sessions:  memory.NewSessionDAO(),
			scheduled: memory.NewScheduledOrderDAO(),
		}
	}
	return daos{
		accounts:  query.NewAccountDAO(db),
		audits:    query.NewAuditDAO(db),
		limits:    query.NewRiskLimitDAO(db),
		trades:    query.NewTradeDAO(db),
		strategy:  query.NewStrategyDAO(db),
		sessions:  query.NewSessionDAO(db),
		scheduled: query.NewScheduledOrderDAO(db),
	}
}

// App 组装好的引擎和 HTTP 路由
type App struct {
	Router Router
	Engine *engine.Engine

	cfg      *conf.Config
	bus      *bus.Bus
	brokers  *exchange.AccountProvider
	producer kafka.ProducerService
	closers  []func()
}

func InitApp(cfg *conf.Config, db *gorm.DB, rdb *redis.Client) *App {
	clk := clock.New()
	d := newDAOs(db)
	b := bus.New(busQueueSize)

	trails := []audit.Trail{audit.NewDAOTrail(d.audits), audit.NewLogTrail()}
	if cfg.AuditFile != "" {
		trails = append(trails, audit.NewFileTrail(cfg.AuditFile))
	}
	trail := audit.Multi(trails...)
	brokers := exchange.NewAccountProvider(d.accounts, *cfg, nil, rdb)
	if cfg.Broker.SecretKey != "" {
		sealer, err := security.NewSealer([]byte(cfg.Broker.SecretKey), []byte(cfg.AppName))
		if err != nil {
			logger.Fatalf("[Init] credential sealer: %v", err)
		}
		brokers.WithSealer(sealer)
	}
	brk := breaker.New(clk, trail, b)
	rec := trade.NewRecorder(d.trades, b, clk)
	loc := cfg.Engine.Location()

	orch := strategy.NewOrchestrator(strategy.Options{
		DAO: d.strategy,
		Capital: func(ctx context.Context, accountID string) (float64, error) {
			broker, err := brokers.Broker(ctx, accountID)
			if err != nil {
				return 0, err
			}
			bal, err := broker.GetAccountBalance(ctx)
			if err != nil {
				return 0, err
			}
			return bal.TotalEvaluation, nil
		},
		Pub:      b,
		Clock:    clk,
		Location: loc,
	})

	e := engine.New(engine.Options{
		Config:  *cfg,
		Brokers: brokers,
		Signals: signal.NewProcessor(clk, b),
		Breaker: brk,
		Risk: risk.NewService(risk.Options{
			Breaker:  brk,
			Brokers:  brokers,
			Trades:   d.trades,
			Limits:   d.limits,
			Recorder: rec,
			Trail:    trail,
			Clock:    clk,
			Defaults: cfg.Risk,
			Location: loc,
		}),
		Orchestrator: orch,
		Sizer:        position.NewSizer(cfg.Engine.MaxRiskPercent, cfg.Risk.MaxPositionPercent),
		Router: execution.NewRouter(execution.Options{
			Brokers:  brokers,
			Breaker:  brk,
			Recorder: rec,
			Trail:    trail,
			Pub:      b,
			Clock:    clk,
			Config:   cfg.Router,
		}),
		Recorder:  rec,
		Sessions:  d.sessions,
		Scheduled: d.scheduled,
		Trail:     trail,
		Bus:       b,
		Clock:     clk,
	})

	app := &App{
		Router:  router.NewApiRouter(trading.NewTradingHandler(e)),
		Engine:  e,
		cfg:     cfg,
		bus:     b,
		brokers: brokers,
	}
	if cfg.Kafka.Broker != "" {
		app.producer = kafka.NewKafkaProducer(cfg.Kafka.Broker)
		app.closers = append(app.closers, bus.ForwardToKafka(b, app.producer, cfg.Kafka.TopicPrefix))
	}
	return app
}

// Run 启动引擎和外部数据源，ctx 结束后返回
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				logger.Errorf("[Init] %s stopped: %v", name, err)
			}
		}()
	}

	run("engine", func() error { return a.Engine.Run(ctx) })

	if a.cfg.Kafka.Broker != "" && a.cfg.Feed.SignalTopic != "" {
		consumer := kafka.NewKafkaConsumer(a.cfg.Kafka.Broker)
		a.closers = append(a.closers, consumer.Close)
		run("signal consumer", func() error {
			return a.Engine.ConsumeSignals(ctx, consumer, a.cfg.Feed.SignalTopic, a.cfg.Feed.GroupID)
		})
	}

	if a.cfg.Feed.TickURL != "" {
		client, err := stream.NewTickClient(a.cfg.Feed.TickURL, a.cfg.Feed.Symbols)
		if err != nil {
			logger.Errorf("[Init] tick feed disabled: %v", err)
		} else {
			run("tick feed", func() error {
				return a.Engine.RunTickFeed(ctx, client, a.feedSimulated)
			})
		}
	}

	wg.Wait()
	a.Close()
}

// feedSimulated 模拟盘按实时行情撮合
func (a *App) feedSimulated(t model.Tick) {
	a.brokers.EachSimulated(func(_ string, sim *exchange.SimulatedBroker) {
		sim.SetPrice(t.Symbol, t.Price)
		sim.SetChangeRate(t.Symbol, t.ChangeRate)
	})
}

func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
	if a.producer != nil {
		a.producer.Close()
		a.producer = nil
	}
	a.bus.Close()
}
