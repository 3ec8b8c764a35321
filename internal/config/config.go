package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Supplier SupplierConfig `json:"supplier"`
	Sync     SyncConfig     `json:"sync"`
	Scrape   ScrapeConfig   `json:"scrape"`
	Storage  StorageConfig  `json:"storage"`
	Email    EmailConfig    `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env            string `json:"env"`              // 运行环境: local / prod
	LogLevel       string `json:"log_level"`        // 日志级别: debug / info / warn / error
	HTTPAddr       string `json:"http_addr"`        // API 服务监听地址
	MetricsAddr    string `json:"metrics_addr"`     // enrichworker 指标监听地址
	WorkerPoolSize int    `json:"worker_pool_size"` // 同步任务 Worker Pool 大小
	QueueCapacity  int    `json:"queue_capacity"`   // 同步任务队列容量
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// SupplierConfig 供应商 API 配置。
type SupplierConfig struct {
	BaseURL        string        `json:"base_url"`        // API 根地址
	Username       string        `json:"username"`        // 令牌交换用户名
	Password       string        `json:"password"`        // 令牌交换密码
	LocationID     string        `json:"location_id"`     // 门店/仓库标识（查询参数 locationid）
	PriceID        string        `json:"price_id"`        // 价目表标识（查询参数 priceid）
	FanOutWorkers  int           `json:"fan_out_workers"` // 按编码扫描时的并发上限
	RequestTimeout time.Duration `json:"request_timeout"` // 单次请求超时（如 "30s"）
	RateLimit      float64       `json:"rate_limit"`      // 请求速率（req/s）
	RateBurst      int           `json:"rate_burst"`      // 速率桶容量
}

// SyncConfig 目录同步策略配置。
type SyncConfig struct {
	// 新建商品的默认状态: "draft"（待人工审核）或 "published"。
	DefaultStatusOnCreate string `json:"default_status_on_create"`
	// 人工维护的商品是否允许供应商覆盖标题/描述。
	// false 时仅更新价格与库存。
	AllowOverwriteManualEntries bool `json:"allow_overwrite_manual_entries"`

	StockBatchPageSize int `json:"stock_batch_page_size"` // 库存批量同步的分页大小
	StockBatchMaxRows  int `json:"stock_batch_max_rows"`  // 库存批量同步扫描行数上限
	FullSyncPageSize   int `json:"full_sync_page_size"`   // 全量同步的分页大小
	FullSyncMaxRows    int `json:"full_sync_max_rows"`    // 全量同步扫描行数上限

	ScheduledEnabled bool          `json:"scheduled_enabled"` // 是否启用定时同步
	StockInterval    time.Duration `json:"stock_interval"`    // 库存同步周期（如 "3h"）
	FullInterval     time.Duration `json:"full_interval"`     // 全量同步周期（如 "24h"）
}

// ScrapeConfig 外部站点抓取配置。
type ScrapeConfig struct {
	MinDelay       time.Duration `json:"min_delay"`       // 请求前随机延迟下限
	MaxDelay       time.Duration `json:"max_delay"`       // 请求前随机延迟上限
	RequestTimeout time.Duration `json:"request_timeout"` // 单次抓取超时
	RateLimit      float64       `json:"rate_limit"`      // 全局抓取速率（token/s）
	RateBurst      float64       `json:"rate_burst"`      // 速率桶容量
	CooldownWindow int           `json:"cooldown_window"` // 同一 URL 的冷却窗口（秒）
}

// StorageConfig 图片对象存储配置（R2 / S3 兼容）。
type StorageConfig struct {
	Endpoint        string `json:"endpoint"`          // S3 兼容端点
	Region          string `json:"region"`            // 区域（R2 固定 "auto"）
	AccessKeyID     string `json:"access_key_id"`     // 访问密钥 ID
	SecretAccessKey string `json:"secret_access_key"` // 访问密钥
	Bucket          string `json:"bucket"`            // 存储桶
	PublicBaseURL   string `json:"public_base_url"`   // 公开访问根地址
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	ReportTo  string `json:"report_to"` // 同步报告收件人
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 解析 JSON
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// 应用默认值（对于未设置的字段）
	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":8081",
			MetricsAddr:    ":9091",
			WorkerPoolSize: 4,
			QueueCapacity:  64,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/papastore?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Supplier: SupplierConfig{
			BaseURL:        "https://api.mistralsoft.example",
			Username:       "",
			Password:       "",
			LocationID:     "1",
			PriceID:        "1",
			FanOutWorkers:  10,
			RequestTimeout: 30 * time.Second,
			RateLimit:      5,
			RateBurst:      10,
		},
		Sync: SyncConfig{
			DefaultStatusOnCreate:       "draft",
			AllowOverwriteManualEntries: false,
			StockBatchPageSize:          1000,
			StockBatchMaxRows:           50000,
			FullSyncPageSize:            1000,
			FullSyncMaxRows:             20000,
			ScheduledEnabled:            false,
			StockInterval:               3 * time.Hour,
			FullInterval:                24 * time.Hour,
		},
		Scrape: ScrapeConfig{
			MinDelay:       2 * time.Second,
			MaxDelay:       5 * time.Second,
			RequestTimeout: 15 * time.Second,
			RateLimit:      0.5,
			RateBurst:      1,
			CooldownWindow: 3600,
		},
		Storage: StorageConfig{
			Endpoint:        "",
			Region:          "auto",
			AccessKeyID:     "",
			SecretAccessKey: "",
			Bucket:          "papastore-images",
			PublicBaseURL:   "",
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
			ReportTo:  "",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}

	if cfg.Supplier.BaseURL == "" {
		cfg.Supplier.BaseURL = defaults.Supplier.BaseURL
	}
	if cfg.Supplier.LocationID == "" {
		cfg.Supplier.LocationID = defaults.Supplier.LocationID
	}
	if cfg.Supplier.PriceID == "" {
		cfg.Supplier.PriceID = defaults.Supplier.PriceID
	}
	if cfg.Supplier.FanOutWorkers == 0 {
		cfg.Supplier.FanOutWorkers = defaults.Supplier.FanOutWorkers
	}
	if cfg.Supplier.RequestTimeout == 0 {
		cfg.Supplier.RequestTimeout = defaults.Supplier.RequestTimeout
	}
	if cfg.Supplier.RateLimit == 0 {
		cfg.Supplier.RateLimit = defaults.Supplier.RateLimit
	}
	if cfg.Supplier.RateBurst == 0 {
		cfg.Supplier.RateBurst = defaults.Supplier.RateBurst
	}

	if cfg.Sync.DefaultStatusOnCreate == "" {
		cfg.Sync.DefaultStatusOnCreate = defaults.Sync.DefaultStatusOnCreate
	}
	if cfg.Sync.StockBatchPageSize == 0 {
		cfg.Sync.StockBatchPageSize = defaults.Sync.StockBatchPageSize
	}
	if cfg.Sync.StockBatchMaxRows == 0 {
		cfg.Sync.StockBatchMaxRows = defaults.Sync.StockBatchMaxRows
	}
	if cfg.Sync.FullSyncPageSize == 0 {
		cfg.Sync.FullSyncPageSize = defaults.Sync.FullSyncPageSize
	}
	if cfg.Sync.FullSyncMaxRows == 0 {
		cfg.Sync.FullSyncMaxRows = defaults.Sync.FullSyncMaxRows
	}
	if cfg.Sync.StockInterval == 0 {
		cfg.Sync.StockInterval = defaults.Sync.StockInterval
	}
	if cfg.Sync.FullInterval == 0 {
		cfg.Sync.FullInterval = defaults.Sync.FullInterval
	}

	if cfg.Scrape.MinDelay == 0 {
		cfg.Scrape.MinDelay = defaults.Scrape.MinDelay
	}
	if cfg.Scrape.MaxDelay == 0 {
		cfg.Scrape.MaxDelay = defaults.Scrape.MaxDelay
	}
	if cfg.Scrape.MaxDelay < cfg.Scrape.MinDelay {
		cfg.Scrape.MaxDelay = cfg.Scrape.MinDelay
	}
	if cfg.Scrape.RequestTimeout == 0 {
		cfg.Scrape.RequestTimeout = defaults.Scrape.RequestTimeout
	}
	if cfg.Scrape.RateLimit == 0 {
		cfg.Scrape.RateLimit = defaults.Scrape.RateLimit
	}
	if cfg.Scrape.RateBurst == 0 {
		cfg.Scrape.RateBurst = defaults.Scrape.RateBurst
	}
	if cfg.Scrape.CooldownWindow == 0 {
		cfg.Scrape.CooldownWindow = defaults.Scrape.CooldownWindow
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = defaults.Storage.Region
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = defaults.Storage.Bucket
	}

	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("supplier_username", "SUPPLIER_USERNAME")
	_ = viper.BindEnv("supplier_password", "SUPPLIER_PASSWORD")
	_ = viper.BindEnv("storage_access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage_secret_access_key", "STORAGE_SECRET_ACCESS_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}

	if v := os.Getenv("SUPPLIER_BASE_URL"); v != "" {
		cfg.Supplier.BaseURL = v
	}
	if v := viper.GetString("supplier_username"); v != "" {
		cfg.Supplier.Username = v
	}
	if v := viper.GetString("supplier_password"); v != "" {
		cfg.Supplier.Password = v
	}
	if v := os.Getenv("SUPPLIER_LOCATION_ID"); v != "" {
		cfg.Supplier.LocationID = v
	}
	if v := os.Getenv("SUPPLIER_PRICE_ID"); v != "" {
		cfg.Supplier.PriceID = v
	}
	if v := os.Getenv("SUPPLIER_FAN_OUT_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Supplier.FanOutWorkers = i
		}
	}
	if v := os.Getenv("SUPPLIER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Supplier.RequestTimeout = d
		}
	}

	if v := os.Getenv("SYNC_DEFAULT_STATUS_ON_CREATE"); v != "" {
		cfg.Sync.DefaultStatusOnCreate = v
	}
	if v := os.Getenv("SYNC_ALLOW_OVERWRITE_MANUAL_ENTRIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.AllowOverwriteManualEntries = b
		}
	}
	if v := os.Getenv("SYNC_SCHEDULED_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sync.ScheduledEnabled = b
		}
	}
	if v := os.Getenv("SYNC_STOCK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.StockInterval = d
		}
	}
	if v := os.Getenv("SYNC_FULL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.FullInterval = d
		}
	}

	if v := os.Getenv("SCRAPE_MIN_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scrape.MinDelay = d
		}
	}
	if v := os.Getenv("SCRAPE_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scrape.MaxDelay = d
		}
	}
	if v := os.Getenv("SCRAPE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scrape.RequestTimeout = d
		}
	}
	if v := os.Getenv("SCRAPE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scrape.RateLimit = f
		}
	}
	if v := os.Getenv("SCRAPE_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scrape.RateBurst = f
		}
	}
	if v := os.Getenv("SCRAPE_COOLDOWN_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Scrape.CooldownWindow = i
		}
	}

	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := viper.GetString("storage_access_key_id"); v != "" {
		cfg.Storage.AccessKeyID = v
	}
	if v := viper.GetString("storage_secret_access_key"); v != "" {
		cfg.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_PUBLIC_BASE_URL"); v != "" {
		cfg.Storage.PublicBaseURL = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_REPORT_TO"); v != "" {
		cfg.Email.ReportTo = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := func() *mysql.Config {
		return &mysql.Config{
			User:   "root",
			Passwd: "",
			Net:    "tcp",
			Addr:   "localhost:3306",
			DBName: "papastore",
			Params: map[string]string{
				"parseTime": "true",
				"loc":       "Local",
			},
		}
	}
	if dsn == "" {
		return fallback()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SupplierConfig) UnmarshalJSON(data []byte) error {
	type Alias SupplierConfig
	aux := &struct {
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.RequestTimeout != "" {
		duration, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout format: %w", err)
		}
		s.RequestTimeout = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SupplierConfig) MarshalJSON() ([]byte, error) {
	type Alias SupplierConfig
	return json.Marshal(&struct {
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		RequestTimeout: s.RequestTimeout.String(),
		Alias:          (*Alias)(&s),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SyncConfig) UnmarshalJSON(data []byte) error {
	type Alias SyncConfig
	aux := &struct {
		StockInterval string `json:"stock_interval"`
		FullInterval  string `json:"full_interval"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.StockInterval != "" {
		duration, err := time.ParseDuration(aux.StockInterval)
		if err != nil {
			return fmt.Errorf("invalid stock_interval format: %w", err)
		}
		s.StockInterval = duration
	}
	if aux.FullInterval != "" {
		duration, err := time.ParseDuration(aux.FullInterval)
		if err != nil {
			return fmt.Errorf("invalid full_interval format: %w", err)
		}
		s.FullInterval = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SyncConfig) MarshalJSON() ([]byte, error) {
	type Alias SyncConfig
	return json.Marshal(&struct {
		StockInterval string `json:"stock_interval"`
		FullInterval  string `json:"full_interval"`
		*Alias
	}{
		StockInterval: s.StockInterval.String(),
		FullInterval:  s.FullInterval.String(),
		Alias:         (*Alias)(&s),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *ScrapeConfig) UnmarshalJSON(data []byte) error {
	type Alias ScrapeConfig
	aux := &struct {
		MinDelay       string `json:"min_delay"`
		MaxDelay       string `json:"max_delay"`
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.MinDelay != "" {
		duration, err := time.ParseDuration(aux.MinDelay)
		if err != nil {
			return fmt.Errorf("invalid min_delay format: %w", err)
		}
		s.MinDelay = duration
	}
	if aux.MaxDelay != "" {
		duration, err := time.ParseDuration(aux.MaxDelay)
		if err != nil {
			return fmt.Errorf("invalid max_delay format: %w", err)
		}
		s.MaxDelay = duration
	}
	if aux.RequestTimeout != "" {
		duration, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout format: %w", err)
		}
		s.RequestTimeout = duration
	}

	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s ScrapeConfig) MarshalJSON() ([]byte, error) {
	type Alias ScrapeConfig
	return json.Marshal(&struct {
		MinDelay       string `json:"min_delay"`
		MaxDelay       string `json:"max_delay"`
		RequestTimeout string `json:"request_timeout"`
		*Alias
	}{
		MinDelay:       s.MinDelay.String(),
		MaxDelay:       s.MaxDelay.String(),
		RequestTimeout: s.RequestTimeout.String(),
		Alias:          (*Alias)(&s),
	})
}
