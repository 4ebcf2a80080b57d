package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultMaxImageBytes — предел размера фото (10 MiB).
const DefaultMaxImageBytes int64 = 10 << 20

type Config struct {
	Port string `yaml:"port"`

	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	DefaultEngine string `yaml:"default_engine"` // "gemini" | "gpt"
	PromptFile    string `yaml:"prompt_file"`

	MaxImageBytes  int64         `yaml:"max_image_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowOrigins   []string      `yaml:"cors_allow_origins"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`

	DatabaseURL string        `yaml:"database_url"`
	CacheMaxAge time.Duration `yaml:"cache_max_age"`

	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		Port:           "8000",
		GeminiModel:    "gemini-2.5-flash",
		OpenAIModel:    "gpt-4o-mini",
		DefaultEngine:  "gemini",
		MaxImageBytes:  DefaultMaxImageBytes,
		RequestTimeout: 180 * time.Second,
		AllowOrigins:   []string{"http://localhost:3000"},
		CacheMaxAge:    30 * 24 * time.Hour,
		LogLevel:       "info",
	}
}

// Load собирает конфиг: дефолты → YAML-файл (PLANTID_CONFIG) → переменные окружения.
// .env в рабочей директории подхватывается, если есть.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if p := strings.TrimSpace(os.Getenv("PLANTID_CONFIG")); p != "" {
		if err := cfg.loadFile(p); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	c.Port = getEnv("PORT", c.Port)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.DefaultEngine = getEnv("DEFAULT_ENGINE", c.DefaultEngine)
	c.PromptFile = getEnv("PROMPT_FILE", c.PromptFile)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if dsn := resolveDSN(); dsn != "" {
		c.DatabaseURL = dsn
	}
	if v := getEnv("CORS_ALLOW_ORIGINS", ""); v != "" {
		c.AllowOrigins = splitList(v)
	}

	if v := getEnv("MAX_IMAGE_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_IMAGE_BYTES: %w", err)
		}
		c.MaxImageBytes = n
	}
	var err error
	if c.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.CacheMaxAge, err = getDuration("CACHE_MAX_AGE", c.CacheMaxAge); err != nil {
		return err
	}
	return nil
}

// Validate проверяет, что хотя бы одна модель настроена.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" && strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return errors.New("missing required env GEMINI_API_KEY or OPENAI_API_KEY")
	}
	switch strings.ToLower(strings.TrimSpace(c.DefaultEngine)) {
	case "gemini", "gpt", "openai":
	default:
		return fmt.Errorf("DEFAULT_ENGINE %q: use gemini or gpt", c.DefaultEngine)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0, got %d", c.MaxImageBytes)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0, got %s", c.RequestTimeout)
	}
	return nil
}

// CacheEnabled — кэш в Postgres включается только при заданном DSN.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	// голое число — секунды
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveDSN: DATABASE_URL, иначе собираем из POSTGRES_*/PG*. Без хоста — кэш выключен.
func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	host := getEnv("PGHOST", "")
	if host == "" {
		return ""
	}
	user := getEnv("POSTGRES_USER", "plantid")
	pass := os.Getenv("POSTGRES_PASSWORD")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "plantid")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
