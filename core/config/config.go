package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// WhatsAppConfig holds Green API credentials and the webhook-driven transport settings.
type WhatsAppConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"WHATSAPP_ENABLED"`
	InstanceID string `yaml:"instance_id" envconfig:"GREEN_API_ID_INSTANCE"`
	Token      string `yaml:"token" envconfig:"GREEN_API_TOKEN_INSTANCE"`
	APIURL     string `yaml:"api_url" envconfig:"GREEN_API_URL"`
	// GroupChat is the destination for report broadcasts, e.g. 1234567@g.us.
	// Empty disables broadcasting (logged, not fatal).
	GroupChat string `yaml:"group_chat" envconfig:"GROUP_ID"`
}

// TelegramConfig holds the optional Telegram transport settings.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	// GroupChatID is the destination chat for report broadcasts; 0 disables.
	GroupChatID int64 `yaml:"group_chat_id" envconfig:"TELEGRAM_GROUP_CHAT_ID"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// HTTPConfig specifies webhook server settings.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"HTTP_PORT"`
}

// MediaConfig controls photo intake and retention.
type MediaConfig struct {
	Dir      string `yaml:"dir" envconfig:"UPLOAD_FOLDER"`
	MaxBytes int64  `yaml:"max_bytes" envconfig:"MAX_PHOTO_SIZE"`
	KeepDays int    `yaml:"keep_days" envconfig:"PHOTO_KEEP_DAYS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for per-user inbound rate limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

// Config aggregates all application configuration.
type Config struct {
	// Station names this deployment's weighing station; it is stamped on
	// every committed report.
	Station   string          `yaml:"station" envconfig:"STATION_NAME"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Media     MediaConfig     `yaml:"media"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

const defaultGreenAPIURL = "https://api.green-api.com"

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if !cfg.WhatsApp.Enabled && !cfg.Telegram.Enabled {
		return fmt.Errorf("no transport enabled: set whatsapp.enabled or telegram.enabled")
	}

	if cfg.WhatsApp.Enabled {
		if strings.TrimSpace(cfg.WhatsApp.InstanceID) == "" {
			return fmt.Errorf("whatsapp.instance_id is required when whatsapp.enabled")
		}
		if strings.TrimSpace(cfg.WhatsApp.Token) == "" {
			return fmt.Errorf("whatsapp.token is required when whatsapp.enabled")
		}
		if strings.TrimSpace(cfg.WhatsApp.APIURL) == "" {
			cfg.WhatsApp.APIURL = defaultGreenAPIURL
		}
		if gc := strings.TrimSpace(cfg.WhatsApp.GroupChat); gc != "" && !strings.Contains(gc, "@") {
			return fmt.Errorf("whatsapp.group_chat must include @g.us or @c.us suffix")
		}
	}

	// Health and metrics are served regardless of enabled transports.
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = "0.0.0.0"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 5000
	}

	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled")
		}
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	}

	if strings.TrimSpace(cfg.Database.Host) == "" {
		return fmt.Errorf("database.host is required")
	}
	if strings.TrimSpace(cfg.Database.Port) == "" {
		cfg.Database.Port = "5432"
	}
	if strings.TrimSpace(cfg.Database.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if strings.TrimSpace(cfg.Database.SSLMode) == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	if strings.TrimSpace(cfg.Media.Dir) == "" {
		cfg.Media.Dir = "uploads/photos"
	}
	if cfg.Media.MaxBytes <= 0 {
		cfg.Media.MaxBytes = 10 << 20
	}
	if cfg.Media.KeepDays <= 0 {
		cfg.Media.KeepDays = 30
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}

	return nil
}
