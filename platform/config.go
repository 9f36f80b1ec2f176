package platform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 进程级配置，启动时加载并校验一次，之后只读
type Config struct {
	Environment string
	Debug       bool
	Port        int

	APIKey       string
	EnforceHTTPS bool
	CORSOrigins  []string
	// TrustedProxies 为空时 ClientIP 即直连对端地址
	TrustedProxies []string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int64

	DatabaseURL    string
	DBEcho         bool
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	RedisURL       string
	LogDir         string
	RetentionDays  int
}

var configDefaults = map[string]any{
	"ENVIRONMENT":          "development",
	"DEBUG":                false,
	"PORT":                 8000,
	"ENFORCE_HTTPS":        true,
	"CORS_ORIGINS":         "http://localhost:3000",
	"TRUSTED_PROXIES":      "",
	"OPENAI_BASE_URL":      "",
	"OPENAI_MODEL":         "gpt-4o-mini",
	"OPENAI_TEMPERATURE":   0.3,
	"OPENAI_MAX_TOKENS":    500,
	"DB_ECHO":              false,
	"DB_MAX_OPEN_CONNS":    10,
	"DB_MAX_IDLE_CONNS":    5,
	"DB_CONN_MAX_LIFETIME": "30m",
	"REDIS_URL":            "",
	"LOG_DIR":              "",
	"RETENTION_DAYS":       0,
	"API_KEY":              "",
	"OPENAI_API_KEY":       "",
	"DATABASE_URL":         "",
}

// LoadConfig 读取 .env（可选）和环境变量，返回校验后的配置
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// .env 不存在时直接使用进程环境变量
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Environment:       strings.TrimSpace(v.GetString("ENVIRONMENT")),
		Debug:             v.GetBool("DEBUG"),
		Port:              v.GetInt("PORT"),
		APIKey:            strings.TrimSpace(v.GetString("API_KEY")),
		EnforceHTTPS:      v.GetBool("ENFORCE_HTTPS"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),
		TrustedProxies:    splitList(v.GetString("TRUSTED_PROXIES")),
		OpenAIAPIKey:      strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL:     strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		OpenAIModel:       strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		OpenAITemperature: v.GetFloat64("OPENAI_TEMPERATURE"),
		OpenAIMaxTokens:   v.GetInt64("OPENAI_MAX_TOKENS"),
		DatabaseURL:       strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBEcho:            v.GetBool("DB_ECHO"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLife:     v.GetDuration("DB_CONN_MAX_LIFETIME"),
		RedisURL:          strings.TrimSpace(v.GetString("REDIS_URL")),
		LogDir:            strings.TrimSpace(v.GetString("LOG_DIR")),
		RetentionDays:     v.GetInt("RETENTION_DAYS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 汇总所有配置错误
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.OpenAIModel == "" {
		errs = append(errs, errors.New("OPENAI_MODEL must not be empty"))
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		errs = append(errs, fmt.Errorf("OPENAI_TEMPERATURE out of range: %v", c.OpenAITemperature))
	}
	if c.OpenAIMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("OPENAI_MAX_TOKENS must be positive: %d", c.OpenAIMaxTokens))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must not be negative: %d", c.RetentionDays))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr http 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
