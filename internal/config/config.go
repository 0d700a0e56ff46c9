package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Config is the immutable configuration value for the whole process. It is
// loaded once in main and passed into every constructor; there is no ambient
// global settings object.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OpenAI    ProviderConfig
	Gemini    ProviderConfig
	Retry     RetryConfig
	Pipeline  PipelineConfig
	Pricing   PricingConfig
	R2        R2Config
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	PipelinesPerHour int
}

// ProviderConfig holds the connection settings for one generation provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RetryConfig fixes the retry discipline for provider calls.
type RetryConfig struct {
	// CallTimeout is the wall-clock budget for a single provider call.
	CallTimeout time.Duration
	// OpenAIMaxAttempts and GeminiMaxAttempts cap retries per family.
	OpenAIMaxAttempts int
	GeminiMaxAttempts int
	// RateLimitDelay is the fallback wait for hard 429s when the provider
	// does not suggest one; QuotaDelay is the fallback for quota errors.
	RateLimitDelay time.Duration
	QuotaDelay     time.Duration
	TimeoutDelay   time.Duration
}

type PipelineConfig struct {
	// BatchSize is the number of paragraphs sent per provider call.
	BatchSize int
	// JobRetention is how long finished job rows are kept.
	JobRetention time.Duration
}

// PricingConfig maps model name to USD price per 1k tokens.
type PricingConfig struct {
	Models map[string]ModelPricing
}

type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("GEMINI_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.base_url", "GEMINI_BASE_URL")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("pipeline.batch_size", "PIPELINE_BATCH_SIZE")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.pipelines_per_hour", 20)

	// Provider defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")

	// Retry defaults: quota-limited providers wait ~30s, hard rate limits
	// ~50s, timeouts retry after 15s; one call may block up to 120s.
	viper.SetDefault("retry.call_timeout_seconds", 120)
	viper.SetDefault("retry.openai_max_attempts", 10)
	viper.SetDefault("retry.gemini_max_attempts", 4)
	viper.SetDefault("retry.rate_limit_delay_seconds", 50)
	viper.SetDefault("retry.quota_delay_seconds", 30)
	viper.SetDefault("retry.timeout_delay_seconds", 15)

	// Pipeline defaults
	viper.SetDefault("pipeline.batch_size", 15)
	viper.SetDefault("pipeline.job_retention_hours", 168)

	// Pricing defaults (USD per 1k tokens)
	viper.SetDefault("pricing.models", map[string]map[string]float64{
		"gpt-4o-mini":      {"input_per_1k": 0.00015, "output_per_1k": 0.0006},
		"gpt-4o":           {"input_per_1k": 0.0025, "output_per_1k": 0.01},
		"gemini-1.5-flash": {"input_per_1k": 0.000075, "output_per_1k": 0.0003},
		"gemini-1.5-pro":   {"input_per_1k": 0.00125, "output_per_1k": 0.005},
	})

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	pricing := PricingConfig{Models: map[string]ModelPricing{}}
	for name := range viper.GetStringMap("pricing.models") {
		pricing.Models[name] = ModelPricing{
			InputPer1K:  viper.GetFloat64("pricing.models." + name + ".input_per_1k"),
			OutputPer1K: viper.GetFloat64("pricing.models." + name + ".output_per_1k"),
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			PipelinesPerHour: viper.GetInt("ratelimit.pipelines_per_hour"),
		},
		OpenAI: ProviderConfig{
			APIKey:  viper.GetString("openai.api_key"),
			BaseURL: viper.GetString("openai.base_url"),
			Model:   viper.GetString("openai.model"),
		},
		Gemini: ProviderConfig{
			APIKey:  viper.GetString("gemini.api_key"),
			BaseURL: viper.GetString("gemini.base_url"),
			Model:   viper.GetString("gemini.model"),
		},
		Retry: RetryConfig{
			CallTimeout:       time.Duration(viper.GetInt("retry.call_timeout_seconds")) * time.Second,
			OpenAIMaxAttempts: viper.GetInt("retry.openai_max_attempts"),
			GeminiMaxAttempts: viper.GetInt("retry.gemini_max_attempts"),
			RateLimitDelay:    time.Duration(viper.GetInt("retry.rate_limit_delay_seconds")) * time.Second,
			QuotaDelay:        time.Duration(viper.GetInt("retry.quota_delay_seconds")) * time.Second,
			TimeoutDelay:      time.Duration(viper.GetInt("retry.timeout_delay_seconds")) * time.Second,
		},
		Pipeline: PipelineConfig{
			BatchSize:    viper.GetInt("pipeline.batch_size"),
			JobRetention: time.Duration(viper.GetInt("pipeline.job_retention_hours")) * time.Hour,
		},
		Pricing: pricing,
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}

// CostFor computes the USD cost of a call from token counts using the
// configured pricing table. Unknown models cost zero.
func (p PricingConfig) CostFor(model string, promptTokens, responseTokens int) float64 {
	pricing, ok := p.Models[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000.0*pricing.InputPer1K +
		float64(responseTokens)/1000.0*pricing.OutputPer1K
}
