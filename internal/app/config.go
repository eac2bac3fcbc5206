package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (WAITROOM_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (WAITROOM_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Queue       QueueConfig
	Coupon      CouponConfig
	Rules       RulesConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// QueueConfig controls queue admission.
type QueueConfig struct {
	MaxLen int64 `default:"30" usage:"Waiting room capacity" flag:"max-queue-len"`
}

// CouponConfig controls coupon name generation.
type CouponConfig struct {
	NameLen      int `default:"5"  usage:"Length of generated coupon names" flag:"coupon-name-len"`
	NameAttempts int `default:"10" usage:"Generation attempts before giving up" flag:"coupon-name-attempts"`
}

// RulesConfig controls the built-in coupon rules.
type RulesConfig struct {
	MinFrequenterOrders int64 `default:"10" usage:"Completed orders needed for the frequenter discount" flag:"min-frequenter-orders"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "WAITROOM",
		Files:     []string{"config.yaml", "/etc/waitroom/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set WAITROOM_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables using
// standard names (DATABASE_URL, PORT) to the WAITROOM_-prefixed config.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
