package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`      // development / production
	Calendar string `mapstructure:"calendar"` // jalali / gregorian，决定“当前期”的计算方式
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver       string         `mapstructure:"driver"` // mysql / postgres / sqlite
	MySQL        MySQLConfig    `mapstructure:"mysql"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	SQLite       SQLiteConfig   `mapstructure:"sqlite"`
	MaxOpenConns int            `mapstructure:"max_open_conns"`
	MaxIdleConns int            `mapstructure:"max_idle_conns"`
	LogLevel     string         `mapstructure:"log_level"` // silent / error / warn / info
}

type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	AllocationResult string `mapstructure:"allocation_result"`
	PaymentRecorded  string `mapstructure:"payment_recorded"`
}

type BusinessConfig struct {
	MaxRetryCount int              `mapstructure:"max_retry_count"`
	Fund          FundConfig       `mapstructure:"fund"`
	Assignment    AssignmentConfig `mapstructure:"assignment"`
}

// FundConfig 基金参数的默认值
// 仅在数据库中尚无 fund_config 记录时用于初始化，之后以数据库为准
type FundConfig struct {
	MinPeriodicFee         string `mapstructure:"min_periodic_fee"`
	MaxRepaymentPeriods    int    `mapstructure:"max_repayment_periods"`
	MinLoanRepaymentAmount string `mapstructure:"min_loan_repayment_amount"`
}

type AssignmentConfig struct {
	AutoRun        bool   `mapstructure:"auto_run"`         // 是否由内置 cron 触发分配
	Cron           string `mapstructure:"cron"`             // cron 表达式（含秒）
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"` // 同一期分配锁的过期时间
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.calendar", "jalali")

	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.user", "root")
	v.SetDefault("database.mysql.database", "saghat")
	v.SetDefault("database.sqlite.path", "saghat.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.allocation_result", "saghat.allocation.result")
	v.SetDefault("kafka.topic.payment_recorded", "saghat.payment.recorded")

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.fund.min_periodic_fee", "20")
	v.SetDefault("business.fund.max_repayment_periods", 24)
	v.SetDefault("business.fund.min_loan_repayment_amount", "20")
	v.SetDefault("business.assignment.auto_run", false)
	v.SetDefault("business.assignment.cron", "0 0 9 1 * *")
	v.SetDefault("business.assignment.lock_ttl_seconds", 60)
}

func newViper(configPath string) (*viper.Viper, error) {
	// .env 只是补充环境变量，文件不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SAGHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}
	return v, nil
}

// Load 加载配置文件；configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

// Watch 监听配置文件变化，变化后重新解析并回调
// 只有基金默认值、cron 等业务参数适合热更新，连接类配置仍需重启生效
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return errors.New("未指定配置文件，无法监听")
	}
	v, err := newViper(configPath)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}
		GlobalConfig = cfg
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.App.Calendar {
	case "jalali", "gregorian":
	default:
		return fmt.Errorf("不支持的日历: %q", c.App.Calendar)
	}
	if c.Business.Fund.MaxRepaymentPeriods <= 0 {
		return errors.New("business.fund.max_repayment_periods 必须大于0")
	}
	for key, value := range map[string]string{
		"business.fund.min_periodic_fee":          c.Business.Fund.MinPeriodicFee,
		"business.fund.min_loan_repayment_amount": c.Business.Fund.MinLoanRepaymentAmount,
	} {
		d, err := decimal.NewFromString(value)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("%s 必须是非负十进制数: %q", key, value)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("启用 Kafka 时必须配置 brokers")
	}
	return nil
}
