package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config describes how a Logger should be built.
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, text
	Output     string `yaml:"output"`      // stdout, stderr, file
	OutputPath string `yaml:"output_path"` // file output path, when Output=="file"
	AddSource  bool   `yaml:"add_source"`
	TimeFormat string `yaml:"time_format"`
}

// Logger wraps slog.Logger with its originating config, so the level can be
// changed later without reconstructing the whole handler chain by hand.
type Logger struct {
	*slog.Logger
	config *Config
}

func NewLogger(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level := parseLevel(config.Level)

	handler, err := createHandler(config, level)
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: slog.New(handler), config: config}, nil
}

func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config *Config, level slog.Level) (slog.Handler, error) {
	var writer *os.File
	var err error

	switch strings.ToLower(config.Output) {
	case "stderr":
		writer = os.Stderr
	case "file":
		if config.OutputPath == "" {
			config.OutputPath = "logs/app.log"
		}
		if err := os.MkdirAll("logs", 0755); err != nil {
			return nil, err
		}
		writer, err = os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
	default:
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return handler, nil
}

// WithContext returns a logger carrying the same handler, for call sites
// that want to thread a context through without changing behavior.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{Logger: slog.New(l.Logger.Handler()), config: l.config}
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name), config: l.config}
}

// UpdateLevel rebuilds the handler at a new level in place.
func (l *Logger) UpdateLevel(level string) {
	l.config.Level = level
	newLevel := parseLevel(level)

	handler, err := createHandler(l.config, newLevel)
	if err != nil {
		l.Error("failed to update log level", "error", err)
		return
	}

	l.Logger = slog.New(handler)
}

func (l *Logger) GetConfig() *Config { return l.config }
