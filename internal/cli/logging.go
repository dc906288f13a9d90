package cli

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/devops-sunny/turbofetch/internal/config"
)

// newLogger builds the CLI logger. Console output goes to stderr; with
// cfg.File set every line is also written as JSON to a rotated file.
func newLogger(cfg config.LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var console io.Writer = stderr
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	if cfg.File == "" {
		return zerolog.New(console).With().Timestamp().Logger().Level(level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return zerolog.Logger{}, nil, err
	}
	logWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l := zerolog.New(zerolog.MultiLevelWriter(console, logWriter)).With().Timestamp().Logger().Level(level)
	return l, logWriter, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
