package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// 配置加载（券商凭证、风控默认值、引擎参数等）

type Broker struct {
	AppKey    string        `yaml:"appKey"`
	AppSecret string        `yaml:"appSecret"`
	AccountNo string        `yaml:"accountNo"`
	BaseURL   string        `yaml:"baseUrl"`
	RateLimit float64       `yaml:"rateLimit"` // 每秒请求数
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"` // 单次调用超时
	Retries   int           `yaml:"retries"` // 只读接口的重试次数
	SecretKey string        `yaml:"secretKey"` // 账户凭证加密主密钥
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RiskConfig 账户未配置时使用的默认风控限额
type RiskConfig struct {
	DailyMaxLoss        float64 `yaml:"dailyMaxLoss"`
	DailyMaxLossPercent float64 `yaml:"dailyMaxLossPercent"`
	MaxPositionPercent  float64 `yaml:"maxPositionPercent"`
	MaxDailyTrades      int     `yaml:"maxDailyTrades"`
	MaxOrderValue       float64 `yaml:"maxOrderValue"`
}

type EngineConfig struct {
	EvaluationInterval     time.Duration `yaml:"evaluationInterval"`     // 策略定时评估间隔
	SplitOrderDelay        time.Duration `yaml:"splitOrderDelay"`        // 分批下单间隔
	ScheduledCheckInterval time.Duration `yaml:"scheduledCheckInterval"` // 预约单检查间隔
	TradingHoursOnly       bool          `yaml:"tradingHoursOnly"`
	MarketOpen             string        `yaml:"marketOpen"`  // 09:00
	MarketClose            string        `yaml:"marketClose"` // 15:30
	Timezone               string        `yaml:"timezone"`
	FallbackCashRatio      float64       `yaml:"fallbackCashRatio"` // 信号未指定数量时使用的现金比例
	MaxRiskPercent         float64       `yaml:"maxRiskPercent"`
}

type RouterConfig struct {
	ParticipationRate     float64       `yaml:"participationRate"`
	IcebergSettleDelay    time.Duration `yaml:"icebergSettleDelay"`
	BestLimitPollInterval time.Duration `yaml:"bestLimitPollInterval"`
	SpikeGuardPercent     float64       `yaml:"spikeGuardPercent"`
	MaxSlices             int           `yaml:"maxSlices"`
}

type FeedConfig struct {
	TickURL     string   `yaml:"tickUrl"` // websocket 行情地址
	Symbols     []string `yaml:"symbols"`
	SignalTopic string   `yaml:"signalTopic"` // 外部信号 kafka topic
	GroupID     string   `yaml:"groupId"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topicPrefix"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	MaxPingCount int    `yaml:"max-ping-count"`
	Language     string `yaml:"language"` // 参数校验提示语言 en/zh
	Simulated    bool   `yaml:"simulated"`
	AuditFile    string `yaml:"auditFile"` // 审计日志额外写入的 JSON 文件，空则不写

	Broker Broker       `yaml:"broker"`
	Db     `yaml:"database"`
	Risk   RiskConfig   `yaml:"risk"`
	Engine EngineConfig `yaml:"engine"`
	Router RouterConfig `yaml:"router"`
	Feed   FeedConfig   `yaml:"feed"`
	Log    LogConfig    `yaml:"log"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

var AppConfig = Default()

// Default 全部字段都有值的默认配置，yaml 在此基础上覆盖
func Default() Config {
	return Config{
		AppName:      "edgetrade",
		Listen:       ":12180",
		Mode:         "release",
		MaxPingCount: 10,
		Language:     "en",
		Simulated:    true,
		Broker: Broker{
			RateLimit: 15,
			Burst:     5,
			Timeout:   5 * time.Second,
			Retries:   3,
		},
		Risk: RiskConfig{
			DailyMaxLoss:        1_000_000,
			DailyMaxLossPercent: 5,
			MaxPositionPercent:  20,
			MaxDailyTrades:      50,
			MaxOrderValue:       10_000_000,
		},
		Engine: EngineConfig{
			EvaluationInterval:     time.Minute,
			SplitOrderDelay:        time.Second,
			ScheduledCheckInterval: time.Minute,
			MarketOpen:             "09:00",
			MarketClose:            "15:30",
			Timezone:               "Asia/Seoul",
			FallbackCashRatio:      0.1,
			MaxRiskPercent:         2,
		},
		Router: RouterConfig{
			ParticipationRate:     0.05,
			IcebergSettleDelay:    5 * time.Second,
			BestLimitPollInterval: 10 * time.Second,
			SpikeGuardPercent:     3,
			MaxSlices:             60,
		},
		Feed: FeedConfig{
			SignalTopic: "trading.signals",
			GroupID:     "edgetrade-engine",
		},
		Log: LogConfig{
			Level:   "info",
			MaxSize: 100,
			MaxAge:  7,
			Console: true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			IdleTimeout:  300,
		},
		Kafka: KafkaConfig{
			TopicPrefix: "edgetrade.",
		},
	}
}

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	applyEnv(&cfg)
	AppConfig = cfg
	return nil
}

// 环境变量优先于配置文件
func applyEnv(cfg *Config) {
	setString(&cfg.Db.Username, "DB_USER")
	setString(&cfg.Db.Password, "DB_PASSWORD")
	setString(&cfg.Db.Host, "DB_HOST")
	setString(&cfg.Db.Port, "DB_PORT")
	setString(&cfg.Db.DbName, "DB_NAME")

	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		cfg.Redis.Addr = host + ":" + port
	}
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Kafka.Broker, "KAFKA_BROKER")

	setString(&cfg.Broker.AppKey, "BROKER_APP_KEY")
	setString(&cfg.Broker.AppSecret, "BROKER_APP_SECRET")
	setString(&cfg.Broker.AccountNo, "BROKER_ACCOUNT_NO")
	setString(&cfg.Broker.SecretKey, "BROKER_SECRET_KEY")
	if v, ok := os.LookupEnv("BROKER_RATE_LIMIT"); ok {
		cfg.Broker.RateLimit = cast.ToFloat64(v)
	}
	if v, ok := os.LookupEnv("SIMULATED"); ok {
		cfg.Simulated = cast.ToBool(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("MAX_DAILY_TRADES"); ok {
		cfg.Risk.MaxDailyTrades = cast.ToInt(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Location 引擎使用的时区，解析失败时退回本地时区
func (c EngineConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
