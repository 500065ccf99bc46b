package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	SMTPHost          string `env:"SMTP_HOST,default=localhost"`
	SMTPPort          int    `env:"SMTP_PORT,default=1025"`
	SMTPUser          string `env:"SMTP_USER"`
	SMTPPassword      string `env:"SMTP_PASSWORD"`
	SMTPFrom          string `env:"SMTP_FROM,default=no-reply@example.com"`
	SMSProviderURL    string `env:"SMS_PROVIDER_URL,required=true"`
	SMSProviderToken  string `env:"SMS_PROVIDER_TOKEN"`
	ListingsBaseURL   string `env:"LISTINGS_BASE_URL,default=https://www.indeed.com"`
	ListingsDemoMode  bool   `env:"LISTINGS_DEMO_MODE,default=true"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`
	WorkerPrefetch    int    `env:"WORKER_PREFETCH,default=8"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
