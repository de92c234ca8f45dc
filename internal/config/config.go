// Package config содержит логику чтения конфигурации сервиса платного доступа.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfiguration возвращается при недопустимой конфигурации. Ошибка фатальна на старте.
var ErrConfiguration = errors.New("configuration error")

const (
	defaultRunAddress         = "localhost:8080"
	defaultInvoiceTitle       = "Доступ к генератору описаний"
	defaultInvoiceDescription = "Неограниченный доступ к AI-генератору описаний для handmade-изделий"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddress string `env:"REDIS_ADDRESS"`
	BotToken     string `env:"TELEGRAM_BOT_TOKEN"`

	AuthSecret            string        `env:"AUTH_SECRET"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	Price                 int64         `env:"ENTITLEMENT_PRICE" envDefault:"10"`
	TelegramAPIURL        string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	InitDataMaxAge        time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
	AdminKey              string        `env:"ADMIN_KEY"`
	AllowUnverifiedStatus bool          `env:"ALLOW_UNVERIFIED_STATUS" envDefault:"false"`
	InvoiceTitle          string        `env:"INVOICE_TITLE"`
	InvoiceDescription    string        `env:"INVOICE_DESCRIPTION"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения
// и проверяет её. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envBotToken := cfg.BotToken

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address")
	flag.StringVar(&cfg.BotToken, "t", "", "telegram bot token")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envBotToken != "" {
		cfg.BotToken = envBotToken
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.InvoiceTitle == "" {
		cfg.InvoiceTitle = defaultInvoiceTitle
	}
	if cfg.InvoiceDescription == "" {
		cfg.InvoiceDescription = defaultInvoiceDescription
	}
	// Telegram подписывает initData ключом, производным от токена бота.
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = cfg.BotToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("%w: telegram bot token is not set", ErrConfiguration)
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("%w: auth secret is not set", ErrConfiguration)
	}
	if c.Price <= 0 {
		return fmt.Errorf("%w: entitlement price must be positive, got %d", ErrConfiguration, c.Price)
	}
	if c.InitDataMaxAge < 0 {
		return fmt.Errorf("%w: init data max age must not be negative", ErrConfiguration)
	}
	return nil
}
