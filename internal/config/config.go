package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"./downloads"`
	YtDlpPath   string `envconfig:"YTDLP_PATH" default:"yt-dlp"`

	RetentionWindow time.Duration `envconfig:"RETENTION_WINDOW" default:"1h"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	FileServeGrace  time.Duration `envconfig:"FILE_SERVE_GRACE" default:"30s"`
	MetadataTimeout time.Duration `envconfig:"METADATA_TIMEOUT" default:"60s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"INFO"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"vidgrab"`
	}

	Web struct {
		BindAddress string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout time.Duration `split_words:"true" default:"30s"`
		// WriteTimeout must stay 0: the progress endpoint holds an SSE
		// response open for the lifetime of a download.
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
