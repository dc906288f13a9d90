package turbofetch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used by the client. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which parts of the pipeline emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogCallLog   bool
	LogOffline   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogCallLog:   true,
		LogOffline:   true,
		RequestIDGen: generateRequestID,
	}
}

func generateRequestID() string {
	return uuid.NewString()
}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	zlog zerolog.Logger
}

var _ Logger = (*ZerologLogger)(nil)

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zlog: l}
}

// NewConsoleLogger writes human readable logs to stderr at the given level.
// Unknown levels fall back to info.
func NewConsoleLogger(level string) *ZerologLogger {
	return NewWriterLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

// NewWriterLogger writes JSON logs to w at the given level.
func NewWriterLogger(w io.Writer, level string) *ZerologLogger {
	zLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		zLevel = zerolog.InfoLevel
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(zLevel)
	return &ZerologLogger{zlog: l}
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.emit(l.zlog.Debug(), msg, keysAndValues)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.emit(l.zlog.Info(), msg, keysAndValues)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.emit(l.zlog.Warn(), msg, keysAndValues)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.emit(l.zlog.Error(), msg, keysAndValues)
}

func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			ev = ev.Interface(key, nil)
			break
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
