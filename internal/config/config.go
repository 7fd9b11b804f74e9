package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseURL  string        `mapstructure:"DATABASE_URL"`
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`

	// Redis backs the notification queue.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PublicBaseURL       string `mapstructure:"PUBLIC_BASE_URL"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`

	MinLeadTimeMinutes int    `mapstructure:"MIN_LEAD_TIME_MINUTES"`
	MaxRangeDays       int    `mapstructure:"MAX_RANGE_DAYS"`
	SweepSchedule      string `mapstructure:"SWEEP_SCHEDULE"`
	ReprocessSchedule  string `mapstructure:"REPROCESS_SCHEDULE"`
	MaxEventAttempts   int    `mapstructure:"MAX_EVENT_ATTEMPTS"`

	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// Forwarded-for headers are only honoured from these addresses or CIDRs.
	TrustedProxyList   string `mapstructure:"TRUSTED_PROXIES"`

	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`
}

var defaults = map[string]interface{}{
	"APP_PORT":              "8080",
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"DATABASE_URL":          "",
	"STORE_TIMEOUT":         "5s",
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"JWT_SECRET":            "",
	"STRIPE_SECRET_KEY":     "",
	"STRIPE_WEBHOOK_SECRET": "",
	"PUBLIC_BASE_URL":       "http://localhost:3000",
	"DEFAULT_CURRENCY":      "eur",
	"MIN_LEAD_TIME_MINUTES": 0,
	"MAX_RANGE_DAYS":        62,
	"SWEEP_SCHEDULE":        "@every 1m",
	"REPROCESS_SCHEDULE":    "@every 5m",
	"MAX_EVENT_ATTEMPTS":    5,
	"RATE_LIMIT_PER_MINUTE": 120,
	"CORS_ALLOWED_ORIGINS":  "*",
	"TRUSTED_PROXIES":       "",
	"SENDGRID_API_KEY":      "",
	"SENDGRID_FROM_EMAIL":   "",
	"SENDGRID_FROM_NAME":    "Slotkeeper",
	"TWILIO_ACCOUNT_SID":    "",
	"TWILIO_AUTH_TOKEN":     "",
	"TWILIO_FROM_NUMBER":    "",
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Validate checks the keys the HTTP server cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func (c Config) TrustedProxies() []string {
	return splitList(c.TrustedProxyList)
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) MinLeadTime() time.Duration {
	return time.Duration(c.MinLeadTimeMinutes) * time.Minute
}
