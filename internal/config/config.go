package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lock     LockConfig     `mapstructure:"lock"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Operator OperatorConfig `mapstructure:"operator"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 快照存储
// Driver: mysql / sqlite / none（none 表示不落盘，纯内存运行）
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LockConfig 账户锁
// Driver: local（进程内）/ redis（分布式锁）
type LockConfig struct {
	Driver          string `mapstructure:"driver"`
	TTLSeconds      int    `mapstructure:"ttl_seconds"`
	RetryIntervalMs int    `mapstructure:"retry_interval_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
	BetSettled  string `mapstructure:"bet_settled"`
}

type BusinessConfig struct {
	FeedCapacity                  int   `mapstructure:"feed_capacity"`
	FeedSimulationIntervalSeconds int   `mapstructure:"feed_simulation_interval_seconds"`
	SnapshotFlushIntervalMs       int   `mapstructure:"snapshot_flush_interval_ms"`
	OutboxIntervalMs              int   `mapstructure:"outbox_interval_ms"`
	OutboxCapacity                int   `mapstructure:"outbox_capacity"`
	MaxRetryCount                 int   `mapstructure:"max_retry_count"`
	BcryptCost                    int   `mapstructure:"bcrypt_cost"`
	RandomSeed                    int64 `mapstructure:"random_seed"` // 0 表示使用加密随机种子
	WorkerID                      int64 `mapstructure:"worker_id"`
}

// OperatorConfig 启动时引导的运营账户
type OperatorConfig struct {
	ID           string `mapstructure:"id"`
	DisplayName  string `mapstructure:"display_name"`
	Email        string `mapstructure:"email"`
	Phone        string `mapstructure:"phone"`
	Secret       string `mapstructure:"secret"`
	ReferralCode string `mapstructure:"referral_code"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "wager")
	v.SetDefault("database.sqlite_path", "data/wager.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl_seconds", 30)
	v.SetDefault("lock.retry_interval_ms", 100)
	v.SetDefault("lock.max_retries", 30)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic.ledger_event", "wager-ledger-event")
	v.SetDefault("kafka.topic.bet_settled", "wager-bet-settled")

	v.SetDefault("business.feed_capacity", 50)
	v.SetDefault("business.feed_simulation_interval_seconds", 4)
	v.SetDefault("business.snapshot_flush_interval_ms", 500)
	v.SetDefault("business.outbox_interval_ms", 100)
	v.SetDefault("business.outbox_capacity", 10000)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.bcrypt_cost", 10)
	v.SetDefault("business.random_seed", 0)
	v.SetDefault("business.worker_id", 1)

	v.SetDefault("operator.id", "admin_001")
	v.SetDefault("operator.display_name", "SuperAdmin")
	v.SetDefault("operator.email", "admin@example.com")
	v.SetDefault("operator.phone", "581993")
	v.SetDefault("operator.secret", "")
	v.SetDefault("operator.referral_code", "ADMIN")

	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置
//
// 优先级：环境变量（WAGER_ 前缀，. 换成 _）> 配置文件 > 默认值。
// 工作目录下的 .env 会先被加载到环境变量里；配置文件不存在时只用默认值和环境变量。
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite", "none":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Lock.Driver {
	case "local", "redis":
	default:
		return fmt.Errorf("不支持的锁驱动: %s", c.Lock.Driver)
	}
	if c.Operator.ID == "" || c.Operator.Phone == "" {
		return errors.New("运营账户的 id 和 phone 不能为空")
	}
	if c.Operator.Secret == "" {
		return errors.New("运营账户密码未配置（operator.secret / WAGER_OPERATOR_SECRET）")
	}
	if c.Business.FeedCapacity <= 0 {
		return errors.New("business.feed_capacity 必须大于 0")
	}
	return nil
}
