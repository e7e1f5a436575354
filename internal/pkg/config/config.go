package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	App        AppConfig        `mapstructure:"app"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Appeal     AppealConfig     `mapstructure:"appeal"`
	Loyalty    LoyaltyConfig    `mapstructure:"loyalty"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// OracleConfig 外部审裁服务（大模型）配置
type OracleConfig struct {
	Provider    string  `mapstructure:"provider"` // "claude" 或 "openai"
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout_sec"`
}

// ModerationConfig 审核流水线配置
type ModerationConfig struct {
	// ToS 预筛仅在置信度达到该阈值时才拒绝，否则放行进入完整审核
	ScreenerRejectConfidence float64 `mapstructure:"screener_reject_confidence"`
	WorkerCount              int     `mapstructure:"worker_count"`
	PollIntervalMS           int     `mapstructure:"poll_interval_ms"`
}

// QueueConfig 队列引擎配置
type QueueConfig struct {
	// 优先级档位偏移，单位毫秒，正值插队到更早的到达序位
	TierOffsets map[string]int64 `mapstructure:"tier_offsets"`
	// 认领超时，超过后由回收协程释放回队列
	ClaimTimeoutSec   int `mapstructure:"claim_timeout_sec"`
	ReaperIntervalSec int `mapstructure:"reaper_interval_sec"`
}

// AppealConfig 申诉配置
type AppealConfig struct {
	MaxPerDay        int `mapstructure:"max_per_day"`
	CooldownHours    int `mapstructure:"cooldown_hours"`
	ContentAgeDays   int `mapstructure:"content_age_days"`
	ReasonMinLength  int `mapstructure:"reason_min_length"`
	ReasonMaxLength  int `mapstructure:"reason_max_length"`
}

// LoyaltyConfig 忠诚度分数配置
type LoyaltyConfig struct {
	RankRefreshSec        int     `mapstructure:"rank_refresh_sec"`
	TopicCreatePercentile float64 `mapstructure:"topic_create_percentile"`
}

// ClaimTimeout 认领存活窗口
func (q QueueConfig) ClaimTimeout() time.Duration {
	return time.Duration(q.ClaimTimeoutSec) * time.Second
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Moderation.ScreenerRejectConfidence < 0 || c.Moderation.ScreenerRejectConfidence > 1 {
		return errors.New("moderation.screener_reject_confidence must be within [0,1]")
	}

	if c.Appeal.ReasonMinLength >= c.Appeal.ReasonMaxLength {
		return errors.New("appeal reason length bounds are inverted")
	}

	return nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	configName := "config"
	if env != "" && env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("jwt.expire", 24)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("oracle.provider", "claude")
	viper.SetDefault("oracle.timeout_sec", 60)
	viper.SetDefault("oracle.temperature", 0.2)
	viper.SetDefault("moderation.screener_reject_confidence", 0.8)
	viper.SetDefault("moderation.worker_count", 4)
	viper.SetDefault("moderation.poll_interval_ms", 500)
	viper.SetDefault("queue.claim_timeout_sec", 120)
	viper.SetDefault("queue.reaper_interval_sec", 30)
	viper.SetDefault("queue.tier_offsets", map[string]int64{
		"standard": 0,
		"elevated": 60000,
		"appeal":   300000,
	})
	viper.SetDefault("appeal.max_per_day", 3)
	viper.SetDefault("appeal.cooldown_hours", 24)
	viper.SetDefault("appeal.content_age_days", 7)
	viper.SetDefault("appeal.reason_min_length", 20)
	viper.SetDefault("appeal.reason_max_length", 1000)
	viper.SetDefault("loyalty.rank_refresh_sec", 60)
	viper.SetDefault("loyalty.topic_create_percentile", 0.9)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}
	if oracleKey := os.Getenv("ORACLE_API_KEY"); oracleKey != "" {
		GlobalConfig.Oracle.APIKey = oracleKey
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
