package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/easyeat/internal/domain/order"
	"github.com/xenking/easyeat/internal/storage/localstore"
)

// Config holds the complete application configuration, loadable from
// environment variables (EASYEAT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (EASYEAT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (EASYEAT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Orders       OrdersConfig
	Sessions     SessionsConfig
	LocalStore   localstore.Config
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// OrdersConfig tunes order placement and history.
type OrdersConfig struct {
	DeliveryFee      string        `default:"2.00" usage:"Flat delivery fee added at checkout" flag:"delivery-fee"`
	AutoDeliverDelay time.Duration `default:"60s"  usage:"Delay before an unattended order is shown as delivered; 0 disables" flag:"auto-deliver-delay"`
	RemoteTimeout    time.Duration `default:"10s"  usage:"Timeout of a single order store call" flag:"remote-timeout"`
	PollInterval     time.Duration `default:"15s"  usage:"Background refresh interval of customer histories; 0 disables" flag:"poll-interval"`
}

// History returns the order history configuration.
func (c OrdersConfig) History() (order.Config, error) {
	fee, err := decimal.NewFromString(c.DeliveryFee)
	if err != nil {
		return order.Config{}, errors.Wrap(err, "parse delivery fee")
	}
	if fee.IsNegative() {
		return order.Config{}, errors.Errorf("delivery fee %s is negative", fee)
	}
	return order.Config{
		DeliveryFee:      fee,
		AutoDeliverDelay: c.AutoDeliverDelay,
		RemoteTimeout:    c.RemoteTimeout,
	}, nil
}

// SessionsConfig bounds the live customer sessions.
type SessionsConfig struct {
	MaxIdle       time.Duration `default:"30m"   usage:"Idle time after which a customer session is ended" flag:"session-max-idle"`
	SweepInterval time.Duration `default:"1m"    usage:"How often idle sessions are swept" flag:"session-sweep-interval"`
	Max           int           `default:"10000" usage:"Live sessions above which the service reports not ready" flag:"session-max"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EASYEAT",
		Files:     []string{"config.yaml", "/etc/easyeat/config.yaml"},
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
		return errors.New("database URL is required: set EASYEAT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Orders.History(); err != nil {
		return err
	}
	if c.LocalStore.Driver == localstore.DriverRedis && c.LocalStore.RedisURL == "" {
		return errors.New("redis local store needs a URL: set REDIS_URL")
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		return errors.New("session sweep interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's EASYEAT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.LocalStore.RedisURL == "" {
		c.LocalStore.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
