// Package config loads the service and CLI configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Render  RenderConfig  `mapstructure:"render"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port       string        `mapstructure:"port"`
	PublicHost string        `mapstructure:"public_host"`
	TLS        bool          `mapstructure:"tls"`
	Retention  time.Duration `mapstructure:"retention"`
}

// ModelConfig selects the multimodal backend. ID empty means the backend's
// own default model.
type ModelConfig struct {
	Backend      string        `mapstructure:"backend"` // gemini, openai, ollama
	ID           string        `mapstructure:"id"`
	APIKey       string        `mapstructure:"api_key"`
	APIVersion   string        `mapstructure:"api_version"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Attempts     int           `mapstructure:"attempts"`
	Backoff      time.Duration `mapstructure:"backoff"`
	MaxImageSide int           `mapstructure:"max_image_side"`
	JPEGQuality  int           `mapstructure:"jpeg_quality"`
}

type TTSConfig struct {
	Backend string        `mapstructure:"backend"` // gtranslate, gemini, none
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Voice   string        `mapstructure:"voice"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RenderConfig struct {
	FontPath    string  `mapstructure:"font_path"`
	FontSize    float64 `mapstructure:"font_size"`
	StrokeWidth int     `mapstructure:"stroke_width"`
	Format      string  `mapstructure:"format"` // png, jpeg, webp
	Quality     int     `mapstructure:"quality"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads defaults, then toole.yaml (explicit path or ./, ./configs,
// /etc/toole), then TOOLE_* environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.public_host", "")
	v.SetDefault("server.tls", false)
	v.SetDefault("server.retention", 10*time.Minute)
	v.SetDefault("model.backend", "gemini")
	v.SetDefault("model.id", "")
	v.SetDefault("model.api_key", "${GEMINI_API_KEY}")
	v.SetDefault("model.api_version", "v1beta")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.timeout", 60*time.Second)
	v.SetDefault("model.attempts", 3)
	v.SetDefault("model.backoff", time.Second)
	v.SetDefault("model.max_image_side", 1536)
	v.SetDefault("model.jpeg_quality", 85)
	v.SetDefault("tts.backend", "gtranslate")
	v.SetDefault("tts.base_url", "https://translate.google.com")
	v.SetDefault("tts.model", "")
	v.SetDefault("tts.voice", "")
	v.SetDefault("tts.timeout", 20*time.Second)
	v.SetDefault("render.font_path", "arial.ttf")
	v.SetDefault("render.font_size", 20)
	v.SetDefault("render.stroke_width", 5)
	v.SetDefault("render.format", "png")
	v.SetDefault("render.quality", 90)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("toole")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/toole")
	}

	// TOOLE_MODEL_BACKEND, TOOLE_SERVER_PORT, ...
	v.SetEnvPrefix("TOOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Model.APIKey = resolveEnvRef(cfg.Model.APIKey)
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case "gemini", "openai":
		if c.Model.APIKey == "" || strings.HasPrefix(c.Model.APIKey, "${") {
			return fmt.Errorf("model.api_key is required for backend %q", c.Model.Backend)
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown model.backend %q", c.Model.Backend)
	}
	switch c.TTS.Backend {
	case "gtranslate", "gemini", "none":
	default:
		return fmt.Errorf("unknown tts.backend %q", c.TTS.Backend)
	}
	if c.TTS.Backend == "gemini" && c.Model.Backend != "gemini" {
		return errors.New("tts.backend gemini requires model.backend gemini")
	}
	switch strings.ToLower(c.Render.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("unknown render.format %q", c.Render.Format)
	}
	if c.Model.Attempts < 1 {
		return fmt.Errorf("model.attempts must be at least 1, got %d", c.Model.Attempts)
	}
	if c.Model.Backoff < 0 || c.Model.Timeout < 0 {
		return errors.New("model.backoff and model.timeout must not be negative")
	}
	if c.Model.MaxImageSide < 0 {
		return fmt.Errorf("model.max_image_side must not be negative, got %d", c.Model.MaxImageSide)
	}
	if c.Render.StrokeWidth < 1 || c.Render.FontSize <= 0 {
		return errors.New("render.stroke_width and render.font_size must be positive")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" with the variable's value when set.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging installs the global slog logger. When a log file is set the
// output is teed into a rotating file; the returned closer flushes it.
func SetupLogging(cfg LoggingConfig) io.Closer {
	return setupLogging(cfg, os.Stdout)
}

func setupLogging(cfg LoggingConfig, stdout io.Writer) io.Closer {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(stdout, lj)
		closer = lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
