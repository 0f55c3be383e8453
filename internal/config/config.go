// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/mhpenta/detailsmatter/internal/logger"
)

// Config is the whole process configuration.
type Config struct {
	AppEnv   string `env:"APP_ENV" env-default:"development"`
	HTTPAddr string `env:"HTTP_ADDR" env-default:":8080"`
	Logger   logger.Config

	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`

	Gemini      GeminiConfig
	OpenRouter  OpenRouterConfig
	Director    DirectorConfig
	Storyteller StorytellerConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Defaults    DefaultsConfig
	RateLimit   RateLimitConfig
	Throttle    ThrottleConfig
}

type GeminiConfig struct {
	APIKey     string `env:"GEMINI_API_KEY"`
	ImageModel string `env:"GEMINI_IMAGE_MODEL" env-default:"nano-banana-1"`
	TextModel  string `env:"GEMINI_TEXT_MODEL" env-default:"gemini-2.5-flash"`
}

type OpenRouterConfig struct {
	APIKey  string `env:"OPENROUTER_API_KEY"`
	BaseURL string `env:"OPENROUTER_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model   string `env:"OPENROUTER_MODEL" env-default:"moonshotai/kimi-k2:free"`
}

type DirectorConfig struct {
	Name        string  `env:"DIRECTOR_NAME" env-default:"Director AI"`
	MaxTokens   int     `env:"DIRECTOR_MAX_TOKENS" env-default:"500"`
	Temperature float32 `env:"DIRECTOR_TEMPERATURE" env-default:"0.9"`
}

type StorytellerConfig struct {
	MaxTokens   int     `env:"STORYTELLER_MAX_TOKENS" env-default:"1000"`
	Temperature float32 `env:"STORYTELLER_TEMPERATURE" env-default:"0.7"`
}

type StorageConfig struct {
	ImageDir    string `env:"IMAGE_DIR" env-default:"generated_images"`
	SessionsDir string `env:"SESSIONS_DIR" env-default:"sessions"`
	GalleryDir  string `env:"GALLERY_DIR" env-default:"gallery"`

	// SessionIdle is how long an unused live session is kept before its
	// images are removed. Zero keeps sessions until they are closed.
	SessionIdle time.Duration `env:"SESSION_IDLE_TIMEOUT" env-default:"2h"`
}

// RedisConfig enables the Redis gallery index when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type DefaultsConfig struct {
	Style    string `env:"DEFAULT_STYLE" env-default:"Photorealistic"`
	Mode     string `env:"DEFAULT_MODE" env-default:"Autonomous Story"`
	RoleName string `env:"MODEL_ROLE_NAME" env-default:"Chief of Details"`
}

type RateLimitConfig struct {
	Wait    bool          `env:"WAIT_ON_RATE_LIMIT" env-default:"true"`
	MaxWait time.Duration `env:"MAX_RATE_LIMIT_WAIT" env-default:"2m"`
}

// ThrottleConfig limits generation requests per client IP. Zero disables it.
type ThrottleConfig struct {
	Requests uint          `env:"GENERATION_RATE_LIMIT" env-default:"30"`
	Window   time.Duration `env:"GENERATION_RATE_WINDOW" env-default:"1m"`
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads .env files (missing ones are ignored) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}

// Usage describes every environment variable.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}
