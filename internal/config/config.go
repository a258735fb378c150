package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Shopify  ShopifyConfig
	Sync     SyncConfig
	Task     TaskConfig
	Log      LogConfig
	HTTP     HTTPConfig
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	CreateIfMissing bool // 启动时自动建库
	LogSQL          bool
}

// DSN 业务库连接串
func (c DatabaseConfig) DSN() string {
	return c.dsnFor(c.DBName)
}

// AdminDSN 维护库 (postgres) 连接串，用于建库
func (c DatabaseConfig) AdminDSN() string {
	return c.dsnFor("postgres")
}

func (c DatabaseConfig) dsnFor(dbName string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbName, c.SSLMode)
}

// ShopifyConfig Shopify Admin API 配置
type ShopifyConfig struct {
	APIVersion      string
	Scheme          string // 测试时可改为 http
	Timeout         time.Duration
	UserAgent       string
	Proxy           string
	RatePerSecond   float64 // 单店铺请求速率
	Burst           int
	BreakerFailures uint32 // 连续失败多少次熔断
	BreakerTimeout  time.Duration
	Debug           bool
}

// SyncConfig 订单同步配置
type SyncConfig struct {
	Mode            string // rest | graphql
	MaxOrders       int    // 单次同步上限
	RecentDays      int    // 时间窗口（天）
	JoinConcurrency int    // 读路径并发拉取订单项
	Cooldown        time.Duration
}

// TaskConfig 定时任务配置
type TaskConfig struct {
	Enabled bool
	Cron    string
	Shops   []TaskShop
}

// TaskShop 定时同步的店铺凭证
type TaskShop struct {
	Domain      string `mapstructure:"domain"`
	AccessToken string `mapstructure:"access_token"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string // json | console，为空时按 app.env 决定
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Load 加载配置
// 优先级：环境变量 (SOS_ 前缀) > config.yaml > 默认值
// 启动前会尝试读取 .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetEnvPrefix("SOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			CreateIfMissing: v.GetBool("database.create_if_missing"),
			LogSQL:          v.GetBool("database.log_sql"),
		},
		Shopify: ShopifyConfig{
			APIVersion:      v.GetString("shopify.api_version"),
			Scheme:          v.GetString("shopify.scheme"),
			Timeout:         v.GetDuration("shopify.timeout"),
			UserAgent:       v.GetString("shopify.user_agent"),
			Proxy:           v.GetString("shopify.proxy"),
			RatePerSecond:   v.GetFloat64("shopify.rate_per_second"),
			Burst:           v.GetInt("shopify.burst"),
			BreakerFailures: v.GetUint32("shopify.breaker_failures"),
			BreakerTimeout:  v.GetDuration("shopify.breaker_timeout"),
			Debug:           v.GetBool("shopify.debug"),
		},
		Sync: SyncConfig{
			Mode:            strings.ToLower(v.GetString("sync.mode")),
			MaxOrders:       v.GetInt("sync.max_orders"),
			RecentDays:      v.GetInt("sync.recent_days"),
			JoinConcurrency: v.GetInt("sync.join_concurrency"),
			Cooldown:        v.GetDuration("sync.cooldown"),
		},
		Task: TaskConfig{
			Enabled: v.GetBool("task.enabled"),
			Cron:    v.GetString("task.cron"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		HTTP: HTTPConfig{
			CORSOrigins:     v.GetStringSlice("http.cors_origins"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
	}

	if err := v.UnmarshalKey("task.shops", &cfg.Task.Shops); err != nil {
		return nil, fmt.Errorf("解析 task.shops 失败: %w", err)
	}
	// 与请求头 X-Shopify-Shop-Domain 的处理一致，保证定时任务与接口写入同一店铺键
	for i := range cfg.Task.Shops {
		s := &cfg.Task.Shops[i]
		s.Domain = strings.ToLower(strings.TrimSpace(s.Domain))
		s.AccessToken = strings.TrimSpace(s.AccessToken)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Sync.Mode {
	case "rest", "graphql":
	default:
		return fmt.Errorf("sync.mode 只支持 rest 或 graphql, 当前为 %q", c.Sync.Mode)
	}
	if c.Sync.MaxOrders <= 0 {
		return fmt.Errorf("sync.max_orders 必须大于 0")
	}
	if c.Sync.RecentDays <= 0 {
		return fmt.Errorf("sync.recent_days 必须大于 0")
	}
	if c.Shopify.APIVersion == "" {
		return fmt.Errorf("shopify.api_version 不能为空")
	}
	for i, s := range c.Task.Shops {
		if s.Domain == "" || s.AccessToken == "" {
			return fmt.Errorf("task.shops[%d] 缺少 domain 或 access_token", i)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shopify-order-sync")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3001")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "shopify_orders")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.create_if_missing", true)
	v.SetDefault("database.log_sql", false)

	v.SetDefault("shopify.api_version", "2025-07")
	v.SetDefault("shopify.scheme", "https")
	v.SetDefault("shopify.timeout", 30*time.Second)
	v.SetDefault("shopify.user_agent", "Shopify-Order-Sync/1.0")
	v.SetDefault("shopify.rate_per_second", 2.0)
	v.SetDefault("shopify.burst", 4)
	v.SetDefault("shopify.breaker_failures", 5)
	v.SetDefault("shopify.breaker_timeout", 30*time.Second)

	v.SetDefault("sync.mode", "rest")
	v.SetDefault("sync.max_orders", 10000)
	v.SetDefault("sync.recent_days", 60)
	v.SetDefault("sync.join_concurrency", 8)
	v.SetDefault("sync.cooldown", 30*time.Second)

	v.SetDefault("task.enabled", false)
	v.SetDefault("task.cron", "0 */10 * * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "") // 为空时按 app.env 决定

	v.SetDefault("http.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
}
