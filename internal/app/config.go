package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the API server configuration. Values come from SHOP_* env
// variables, flags or config.yaml.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper  string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	DefaultLocale string `default:"cs" usage:"Locale used when a request has none" flag:"default-locale"`
	StorefrontURL string `default:"http://localhost:3000" usage:"Storefront base URL for payment return links" flag:"storefront-url"`
	GPWebPay      GPWebPayConfig
	RateLimit     RateLimitConfig
	Kafka         KafkaConfig
	Graceful      GracefulConfig
}

// GPWebPayConfig identifies the merchant at the payment gateway.
type GPWebPayConfig struct {
	MerchantNumber string `usage:"GP WebPay merchant number" flag:"gpwebpay-merchant"`
}

// RateLimitConfig limits order placements per client.
type RateLimitConfig struct {
	Max    int           `default:"20" usage:"Max order placements per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// KafkaConfig controls the outbox relay. The relay is off without brokers.
type KafkaConfig struct {
	Brokers  []string      `usage:"Kafka brokers"`
	Topic    string        `default:"storefront.orders" usage:"Topic for order events"`
	Interval time.Duration `default:"2s" usage:"Outbox poll interval"`
	Batch    int           `default:"100" usage:"Max records per outbox poll"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set SHOP_API_KEY_PEPPER")
	case c.StorefrontURL == "":
		return errors.New("storefront URL is required")
	}
	return nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
