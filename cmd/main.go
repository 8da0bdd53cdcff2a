package main

import (
	"context"
	api "edgetrade/cmd/edgetrade"
	"edgetrade/conf"
	"edgetrade/internal/middleware"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/cache"
	"edgetrade/pkg/db"
	"edgetrade/pkg/logger"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	// 加载配置文件，环境变量覆盖
	if err := conf.LoadConfig("conf/config.yaml"); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)

	// 初始化数据库，模拟盘允许没有数据库
	var datasource *gorm.DB
	if appCfg.Db.Host != "" {
		ds, err := db.Init(db.NewConfig(appCfg.Db.Username, appCfg.Db.Password, appCfg.Db.Host, appCfg.Db.Port, appCfg.Db.DbName),
			&entity.Account{}, &entity.Strategy{}, &entity.Trade{}, &entity.RiskLimit{},
			&entity.ScheduledOrder{}, &entity.TradingSession{}, &entity.AuditLog{})
		if err != nil {
			if !appCfg.Simulated {
				logger.Fatalf("init database failed: %v", err)
			}
			logger.Warnf("init database failed, running without persistence: %v", err)
		} else {
			datasource = ds
		}
	}

	// 初始化redis缓存，失败时不缓存行情
	var rdb *redis.Client
	if appCfg.Redis.Addr != "" {
		if err := cache.InitRedis(appCfg.Redis); err != nil {
			logger.Warnf("init redis failed, quote cache disabled: %v", err)
		} else {
			rdb = cache.GetRedisClient()
		}
	}

	app := api.InitApp(&appCfg, datasource, rdb)
	srv := api.NewServer(&appCfg, app)
	srv.OnStopped(db.Close, cache.CloseRedis)
	if err := srv.ListenAndServe(context.Background(), middleware.NewMiddleware()); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
	logger.Infof("server stopped")
}
