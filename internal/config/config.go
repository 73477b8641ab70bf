package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App        AppConfig        `json:"app"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Email      EmailConfig      `json:"email"`
	Security   SecurityConfig   `json:"security"`
	Summarizer SummarizerConfig `json:"summarizer"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string   `json:"env"`          // 运行环境: local / prod
	LogLevel    string   `json:"log_level"`    // 日志级别: debug / info / warn / error
	HTTPAddr    string   `json:"http_addr"`    // API 服务监听地址
	Timezone    string   `json:"timezone"`     // 计算“今天”所用的时区（IANA 名称）
	SeedDemo    bool     `json:"seed_demo"`    // 启动时写入演示账户
	CORSOrigins []string `json:"cors_origins"` // 允许跨域的来源，为空表示不启用 CORS
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / sqlite
	DSN    string `json:"dsn"`    // 数据库连接字符串（sqlite 为文件路径）
}

// RedisConfig Redis 配置（会话、摘要缓存、限流）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`
}

// EmailConfig 邮件配置。SMTPHost / SMTPUser / FromEmail 任一为空时不发送邮件。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	// WelcomeOnRegister 为 true 时注册成功后投递欢迎邮件，默认关闭。
	WelcomeOnRegister bool `json:"welcome_on_register"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret    string        `json:"jwt_secret"`    // 会话令牌签名密钥
	SessionTTL   time.Duration `json:"session_ttl"`   // 会话有效期（如 "24h"），每次请求顺延
	BcryptCost   int           `json:"bcrypt_cost"`   // bcrypt 代价因子
	CookieSecure bool          `json:"cookie_secure"` // 会话 Cookie 是否仅 HTTPS
}

// SummarizerConfig 笔记摘要（大模型补全接口）配置。
type SummarizerConfig struct {
	APIKey    string        `json:"api_key"`    // 为空表示未启用
	BaseURL   string        `json:"base_url"`   // OpenAI 兼容接口地址
	Model     string        `json:"model"`      // 模型标识
	Timeout   time.Duration `json:"timeout"`    // 单次调用超时（如 "20s"）
	RateLimit float64       `json:"rate_limit"` // 每个用户的限流速率（token/s），负数表示不限流
	RateBurst float64       `json:"rate_burst"` // 限流桶容量
	CacheTTL  time.Duration `json:"cache_ttl"`  // 摘要缓存时长，负数表示不缓存
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
// 随后加载当前目录下的 .env（若存在），最后由环境变量覆盖。
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

	// .env 不存在是正常情况
	_ = godotenv.Load()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Location 返回 App.Timezone 对应的时区，无法解析时回退到 UTC。
func (c *Config) Location() *time.Location {
	if c == nil || c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8080",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/tasknotes?parseTime=true&loc=UTC",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 465,
		},
		Security: SecurityConfig{
			JWTSecret:  "dev_secret_change_me",
			SessionTTL: 24 * time.Hour,
			BcryptCost: 10,
		},
		Summarizer: SummarizerConfig{
			BaseURL:   "https://api.groq.com/openai/v1",
			Model:     "llama3-8b-8192",
			Timeout:   20 * time.Second,
			RateLimit: 0.2,
			RateBurst: 5,
			CacheTTL:  24 * time.Hour,
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
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = defaults.App.Timezone
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.SessionTTL == 0 {
		cfg.Security.SessionTTL = defaults.Security.SessionTTL
	}
	if cfg.Security.BcryptCost == 0 {
		cfg.Security.BcryptCost = defaults.Security.BcryptCost
	}
	if cfg.Summarizer.BaseURL == "" {
		cfg.Summarizer.BaseURL = defaults.Summarizer.BaseURL
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = defaults.Summarizer.Model
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = defaults.Summarizer.Timeout
	}
	if cfg.Summarizer.RateLimit == 0 {
		cfg.Summarizer.RateLimit = defaults.Summarizer.RateLimit
	}
	if cfg.Summarizer.CacheTTL == 0 {
		cfg.Summarizer.CacheTTL = defaults.Summarizer.CacheTTL
	}
	if cfg.Summarizer.RateBurst == 0 {
		cfg.Summarizer.RateBurst = defaults.Summarizer.RateBurst
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("groq_api_key", "GROQ_API_KEY")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_TIMEZONE"); v != "" {
		cfg.App.Timezone = v
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		cfg.App.SeedDemo = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_CORS_ORIGINS"); v != "" {
		cfg.App.CORSOrigins = splitList(v)
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.SessionTTL = d
		}
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Security.BcryptCost = i
		}
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.CookieSecure = b
		}
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" && (hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
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
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = i
		}
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
	if v := os.Getenv("SMTP_WELCOME_ON_REGISTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Email.WelcomeOnRegister = b
		}
	}

	if v := viper.GetString("groq_api_key"); v != "" {
		cfg.Summarizer.APIKey = v
	}
	if v := os.Getenv("SUMMARIZER_BASE_URL"); v != "" {
		cfg.Summarizer.BaseURL = v
	}
	if v := os.Getenv("SUMMARIZER_MODEL"); v != "" {
		cfg.Summarizer.Model = v
	}
	if v := os.Getenv("SUMMARIZER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Summarizer.Timeout = d
		}
	}
	if v := os.Getenv("SUMMARIZER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Summarizer.RateLimit = f
		}
	}
	if v := os.Getenv("SUMMARIZER_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Summarizer.RateBurst = f
		}
	}
	if v := os.Getenv("SUMMARIZER_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Summarizer.CacheTTL = d
		}
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

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:                 "root",
		Net:                  "tcp",
		Addr:                 "localhost:3306",
		DBName:               "tasknotes",
		AllowNativePasswords: true,
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "UTC",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		SessionTTL string `json:"session_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SessionTTL != "" {
		d, err := time.ParseDuration(aux.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl format: %w", err)
		}
		s.SessionTTL = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SecurityConfig) MarshalJSON() ([]byte, error) {
	type Alias SecurityConfig
	return json.Marshal(&struct {
		SessionTTL string `json:"session_ttl"`
		*Alias
	}{
		SessionTTL: s.SessionTTL.String(),
		Alias:      (*Alias)(&s),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (s *SummarizerConfig) UnmarshalJSON(data []byte) error {
	type Alias SummarizerConfig
	aux := &struct {
		Timeout  string `json:"timeout"`
		CacheTTL string `json:"cache_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout format: %w", err)
		}
		s.Timeout = d
	}
	if aux.CacheTTL != "" {
		d, err := time.ParseDuration(aux.CacheTTL)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl format: %w", err)
		}
		s.CacheTTL = d
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (s SummarizerConfig) MarshalJSON() ([]byte, error) {
	type Alias SummarizerConfig
	return json.Marshal(&struct {
		Timeout  string `json:"timeout"`
		CacheTTL string `json:"cache_ttl"`
		*Alias
	}{
		Timeout:  s.Timeout.String(),
		CacheTTL: s.CacheTTL.String(),
		Alias:    (*Alias)(&s),
	})
}
