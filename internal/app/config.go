package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/internal/storage/redis"
)

// Config holds the complete server configuration, loadable from environment
// variables (QRDINE_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (QRDINE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper  string `usage:"HMAC pepper for API key hashing (QRDINE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	PublicBaseURL string `default:"http://localhost:5173" usage:"Table frontend origin the gateway redirects back to" flag:"public-base-url"`
	Gateway       GatewayConfig
	Redis         redis.Config
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// GatewayConfig holds the eSewa merchant credentials.
type GatewayConfig struct {
	ProductCode string `default:"EPAYTEST" usage:"eSewa merchant product code"`
	SecretKey   string `usage:"eSewa HMAC secret key (QRDINE_GATEWAY_SECRET_KEY)"`
	FormURL     string `usage:"eSewa form endpoint; empty uses the test environment"`
}

// RateLimitConfig controls the per-client rate limiter. With Redis
// configured the window is shared between replicas.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return load(false)
}

// LoadEnvConfig is LoadConfig without flags, for tools that parse their own.
func LoadEnvConfig() (*Config, error) {
	return load(true)
}

func load(skipFlags bool) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: skipFlags,
		EnvPrefix: "QRDINE",
		Files:     []string{"config.yaml", "/etc/qrdine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set QRDINE_DATABASE_URL or DATABASE_URL")
	}
	if c.Gateway.SecretKey == "" {
		return errors.New("gateway secret key is required: set QRDINE_GATEWAY_SECRET_KEY")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's QRDINE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if !c.Redis.Enabled() {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
