package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	SyncIntervalSeconds int64         `mapstructure:"sync_interval"`
	SyncInterval        time.Duration `mapstructure:"-"`
	SearchParams        string        `mapstructure:"search_params"`
	SearchPages         int           `mapstructure:"search_pages"`

	SourceBaseURL        string        `mapstructure:"source_base_url"`
	SourceCookie         string        `mapstructure:"source_cookie" json:"-"`
	SourceUserAgent      string        `mapstructure:"source_user_agent"`
	SourceTimeoutSeconds int64         `mapstructure:"source_timeout_seconds"`
	SourceTimeout        time.Duration `mapstructure:"-"`

	DownloadWorkers      int           `mapstructure:"download_workers"`
	UploadWorkers        int           `mapstructure:"upload_workers"`
	UploadQueueSize      int           `mapstructure:"upload_queue_size"`
	UploadRatePerSecond  float64       `mapstructure:"upload_rate_per_second"`
	DedupCacheTTLSeconds int64         `mapstructure:"dedup_cache_ttl_seconds"`
	DedupCacheTTL        time.Duration `mapstructure:"-"`

	TelegraphAPIURL         string        `mapstructure:"telegraph_api_url"`
	TelegraphUploadURL      string        `mapstructure:"telegraph_upload_url"`
	TelegraphAccessToken    string        `mapstructure:"telegraph_access_token" json:"-"`
	TelegraphShortName      string        `mapstructure:"telegraph_short_name"`
	TelegraphAuthorName     string        `mapstructure:"telegraph_author_name"`
	TelegraphAuthorURL      string        `mapstructure:"telegraph_author_url"`
	TelegraphTimeoutSeconds int64         `mapstructure:"telegraph_timeout_seconds"`
	TelegraphTimeout        time.Duration `mapstructure:"-"`

	TelegramAPIURL         string        `mapstructure:"telegram_api_url"`
	TelegramBotToken       string        `mapstructure:"telegram_bot_token" json:"-"`
	TelegramChannelID      string        `mapstructure:"telegram_channel_id"`
	TelegramTimeoutSeconds int64         `mapstructure:"telegram_timeout_seconds"`
	TelegramTimeout        time.Duration `mapstructure:"-"`

	TransFile string `mapstructure:"trans_file"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	PublishersFile string `mapstructure:"publishers_file"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "gallery-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sync_interval", 3600) // seconds
	v.SetDefault("search_params", "")
	v.SetDefault("search_pages", 3)

	v.SetDefault("source_base_url", "https://exhentai.org")
	v.SetDefault("source_cookie", "")
	v.SetDefault("source_user_agent", "Mozilla/5.0 (X11; Linux x86_64) gallery-relay")
	v.SetDefault("source_timeout_seconds", 30)

	v.SetDefault("download_workers", 5)
	v.SetDefault("upload_workers", 1)
	v.SetDefault("upload_queue_size", 16)
	v.SetDefault("upload_rate_per_second", 0)
	v.SetDefault("dedup_cache_ttl_seconds", int64((6*time.Hour)/time.Second))

	v.SetDefault("telegraph_api_url", "https://api.telegra.ph")
	v.SetDefault("telegraph_upload_url", "https://telegra.ph/upload")
	v.SetDefault("telegraph_access_token", "")
	v.SetDefault("telegraph_short_name", "gallery-relay")
	v.SetDefault("telegraph_author_name", "")
	v.SetDefault("telegraph_author_url", "")
	v.SetDefault("telegraph_timeout_seconds", 30)

	v.SetDefault("telegram_api_url", "https://api.telegram.org")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_channel_id", "")
	v.SetDefault("telegram_timeout_seconds", 30)

	v.SetDefault("trans_file", "./configs/db.text.json")
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/relay.db")
	v.SetDefault("sqlite_path", "./data/relay.sqlite")
	v.SetDefault("publishers_file", "")
	v.SetDefault("metrics_addr", "")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SyncIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid sync_interval (must be positive seconds)")
	}
	cfg.SyncInterval = time.Duration(cfg.SyncIntervalSeconds) * time.Second

	if cfg.SearchPages <= 0 {
		return nil, fmt.Errorf("invalid search_pages (must be positive)")
	}
	if strings.TrimSpace(cfg.SourceBaseURL) == "" {
		return nil, fmt.Errorf("source_base_url is required")
	}

	if cfg.SourceTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid source_timeout_seconds (must be positive seconds)")
	}
	if cfg.TelegraphTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid telegraph_timeout_seconds (must be positive seconds)")
	}
	if cfg.TelegramTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid telegram_timeout_seconds (must be positive seconds)")
	}
	cfg.SourceTimeout = time.Duration(cfg.SourceTimeoutSeconds) * time.Second
	cfg.TelegraphTimeout = time.Duration(cfg.TelegraphTimeoutSeconds) * time.Second
	cfg.TelegramTimeout = time.Duration(cfg.TelegramTimeoutSeconds) * time.Second

	if cfg.DownloadWorkers <= 0 {
		return nil, fmt.Errorf("invalid download_workers (must be positive)")
	}
	if cfg.UploadWorkers <= 0 {
		return nil, fmt.Errorf("invalid upload_workers (must be positive)")
	}
	if cfg.UploadQueueSize <= 0 {
		return nil, fmt.Errorf("invalid upload_queue_size (must be positive)")
	}
	if cfg.UploadRatePerSecond < 0 {
		return nil, fmt.Errorf("invalid upload_rate_per_second (must not be negative)")
	}

	if cfg.DedupCacheTTLSeconds < 0 {
		return nil, fmt.Errorf("invalid dedup_cache_ttl_seconds (must not be negative)")
	}
	cfg.DedupCacheTTL = time.Duration(cfg.DedupCacheTTLSeconds) * time.Second

	return &cfg, nil
}
