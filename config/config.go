package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	ServiceToken   string `mapstructure:"SERVICE_TOKEN"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Timezone       string `mapstructure:"TIMEZONE"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AuthServiceURL string `mapstructure:"AUTH_SERVICE_URL"`

	TwilioAccountSID     string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string `mapstructure:"TWILIO_WHATSAPP_NUMBER"`
	TwilioBaseURL        string `mapstructure:"TWILIO_BASE_URL"`

	CloudflareAccountID string `mapstructure:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `mapstructure:"R2_ACCESS_KEY_SECRET"`
	R2BucketName        string `mapstructure:"R2_BUCKET_NAME"`
	CDNBaseURL          string `mapstructure:"CDN_BASE_URL"`

	SyncServiceURL string        `mapstructure:"SYNC_SERVICE_URL"`
	SyncInterval   time.Duration `mapstructure:"SYNC_INTERVAL"`

	FanoutWorkers       int  `mapstructure:"FANOUT_WORKERS"`
	FanoutQueueSize     int  `mapstructure:"FANOUT_QUEUE_SIZE"`
	MonthlyGrantEnabled bool `mapstructure:"MONTHLY_GRANT_ENABLED"`
	ExpiryReminderDays  int  `mapstructure:"EXPIRY_REMINDER_DAYS"`

	Rewards Rewards `mapstructure:"rewards"`
}

// Rewards overrides the built-in point and cost tables. Only read from rewards.yaml.
type Rewards struct {
	Points            map[string]int64 `mapstructure:"points"`
	CreditCosts       map[string]int64 `mapstructure:"credit_costs"`
	RedemptionTTLDays int              `mapstructure:"redemption_ttl_days"`
	CodeLength        int              `mapstructure:"code_length"`
}

// Load reads .env, the optional rewards.yaml and the process environment, in that order of
// increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	v := viper.New()

	v.SetDefault("PORT", "5200")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	v.SetDefault("SYNC_INTERVAL", time.Minute)
	v.SetDefault("FANOUT_WORKERS", 4)
	v.SetDefault("FANOUT_QUEUE_SIZE", 256)
	v.SetDefault("MONTHLY_GRANT_ENABLED", false)
	v.SetDefault("EXPIRY_REMINDER_DAYS", 7)
	v.SetDefault("rewards.redemption_ttl_days", 90)
	v.SetDefault("rewards.code_length", 8)

	for _, key := range []string{
		"DATABASE_URL", "SERVICE_TOKEN", "REDIS_URL", "AUTH_SERVICE_URL",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_NUMBER",
		"CLOUDFLARE_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_ACCESS_KEY_SECRET", "R2_BUCKET_NAME", "CDN_BASE_URL",
		"SYNC_SERVICE_URL",
	} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()

	v.SetConfigName("rewards")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read rewards config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, errors.New("SERVICE_TOKEN is not set, service cannot authenticate the gateway")
	}
	return &cfg, nil
}

// Location resolves TIMEZONE, falling back to UTC on an unknown zone name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c *Config) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}
