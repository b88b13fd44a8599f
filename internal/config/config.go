package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventsChannel       string
	JWTSecret           string
	CORSOrigins         string
	SessionCacheTTL     time.Duration
	SubmissionRateLimit int
	SeedEnabled         bool
	SeedToken           string
	AI                  AIConfig
}

// AIConfig configures the evaluation provider and orchestrator.
type AIConfig struct {
	Provider          string
	Model             string
	ModelVersion      string
	BaseURL           string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	Temperature       float32
	MaxTokens         int
	AttemptTimeout    time.Duration
	MaxRetries        int
	FeedbackMaxLength int
	TipsMaxLength     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INTERVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Interview Evaluation API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "interview")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("session.cache_ttl", "5m")
	v.SetDefault("submission.rate_limit", 20)
	v.SetDefault("seed.enabled", false)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_tokens", 800)
	v.SetDefault("ai.attempt_timeout", "30s")
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.feedback_max_length", 1000)
	v.SetDefault("ai.tips_max_length", 1000)

	ttl, err := parseDuration(v.GetString("session.cache_ttl"), 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid session cache ttl: %w", err)
	}

	attemptTimeout, err := parseDuration(v.GetString("ai.attempt_timeout"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ai attempt timeout: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventsChannel:       v.GetString("events.channel"),
		JWTSecret:           v.GetString("jwt.secret"),
		CORSOrigins:         v.GetString("cors.allow_origins"),
		SessionCacheTTL:     ttl,
		SubmissionRateLimit: v.GetInt("submission.rate_limit"),
		SeedEnabled:         v.GetBool("seed.enabled"),
		SeedToken:           v.GetString("seed.token"),
		AI: AIConfig{
			Provider:          strings.ToLower(v.GetString("ai.provider")),
			Model:             v.GetString("ai.model"),
			ModelVersion:      v.GetString("ai.model_version"),
			BaseURL:           v.GetString("ai.base_url"),
			OpenAIAPIKey:      v.GetString("openai_api_key"),
			AnthropicAPIKey:   v.GetString("anthropic_api_key"),
			Temperature:       float32(v.GetFloat64("ai.temperature")),
			MaxTokens:         v.GetInt("ai.max_tokens"),
			AttemptTimeout:    attemptTimeout,
			MaxRetries:        v.GetInt("ai.max_retries"),
			FeedbackMaxLength: v.GetInt("ai.feedback_max_length"),
			TipsMaxLength:     v.GetInt("ai.tips_max_length"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SeedEnabled && cfg.SeedToken == "" {
		return Config{}, fmt.Errorf("seed token must be provided when seeding is enabled")
	}

	switch cfg.AI.Provider {
	case "openai", "anthropic":
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}

	if cfg.AI.MaxRetries < 0 {
		return Config{}, fmt.Errorf("ai max retries must not be negative")
	}

	if cfg.SubmissionRateLimit <= 0 {
		cfg.SubmissionRateLimit = 20
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
