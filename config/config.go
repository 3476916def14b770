package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds every environment driven setting for the service. It is
// loaded once in main and passed to the components that need it.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	JWTSecret string `env:"JWT_SECRET,notEmpty"`

	// S3 settings. S3Endpoint is only set for S3-compatible stores; when
	// empty the standard AWS virtual-hosted URL form is used.
	AWSAccessKey   string `env:"AWS_ACCESS_KEY"`
	AWSSecretKey   string `env:"AWS_SECRET_KEY"`
	S3Bucket       string `env:"S3_BUCKET,notEmpty"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	// OpenAI settings. An empty key disables analysis rather than failing
	// requests. OpenAIBaseURL points the client at a compatible backend.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
}

// Load reads .env when present and parses the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.AWSAccessKey = strings.TrimSpace(cfg.AWSAccessKey)
	cfg.AWSSecretKey = strings.TrimSpace(cfg.AWSSecretKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
