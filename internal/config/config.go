package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Port              int           `yaml:"port" mapstructure:"port"`
	MaxUploadMB       int           `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AdvertisedMB      int           `yaml:"advertised_upload_mb" mapstructure:"advertised_upload_mb"`
	AnalysesPerMinute int           `yaml:"analyses_per_minute" mapstructure:"analyses_per_minute"`
	SessionTTL        time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	AllowedOrigins    []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	UploadDir         string        `yaml:"upload_dir" mapstructure:"upload_dir"`
}

// ExtractorConfig locates the ffmpeg binaries.
type ExtractorConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	Quality     int    `yaml:"quality" mapstructure:"quality"`
}

// AnthropicConfig holds the Messages API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// SessionConfig tunes the analysis pipeline.
type SessionConfig struct {
	Frames       int           `yaml:"frames" mapstructure:"frames"`
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
}

// ArchiveConfig selects where finished reports are kept.
type ArchiveConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Load reads config.yaml (optional), TRUTHLENS_* env vars and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRUTHLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "tint")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 0)
	v.SetDefault("server.advertised_upload_mb", 50)
	v.SetDefault("server.analyses_per_minute", 10)
	v.SetDefault("server.session_ttl", 30*time.Minute)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.upload_dir", os.TempDir())
	v.SetDefault("extractor.ffmpeg_path", "ffmpeg")
	v.SetDefault("extractor.ffprobe_path", "ffprobe")
	v.SetDefault("extractor.quality", 3)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.1)
	v.SetDefault("session.frames", 4)
	v.SetDefault("session.tick_interval", 1200*time.Millisecond)
	v.SetDefault("session.settle_delay", 500*time.Millisecond)
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.dir", "reports")
	v.SetDefault("archive.database_url", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, eris.Wrapf(err, "config: parse log level %q", cfg.Level)
	}

	switch cfg.Format {
	case "", "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, eris.Errorf("config: unknown log format %q", cfg.Format)
	}
}
