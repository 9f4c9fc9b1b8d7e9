package reporting

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level  LogLevel
	Format LogFormat
	Output io.Writer
}

// Logger is the engine's sink boundary. Much of what this tool logs is
// attacker-shaped: payload echoes, peer-controlled error strings, raw
// response fragments. Every string field therefore passes through
// SanitizeLogLine before it can reach a terminal — call sites never have
// to remember to escape.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a new structured logger
func NewLogger(cfg LoggerConfig) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	if cfg.Format == LogFormatText {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return &Logger{zl: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.emit(l.zl.Error(), msg, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	l.emit(l.zl.Fatal(), msg, fields)
}

// Worker returns a child logger carrying the hive slot id, so every line
// a worker emits can be correlated with its status on the heatmap.
func (l *Logger) Worker(id int) *Logger {
	return &Logger{zl: l.zl.With().Int("worker", id).Logger()}
}

// WithField creates a child logger with an additional field. String
// values are sanitized like event fields.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if s, ok := value.(string); ok {
		return &Logger{zl: l.zl.With().Str(key, SanitizeLogLine(s)).Logger()}
	}
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// emit attaches key/value pairs and writes the event. Strings and error
// texts are sanitized; a trailing key with no value and non-string keys
// are dropped.
func (l *Logger) emit(ev *zerolog.Event, msg string, fields []interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			ev.Str(key, SanitizeLogLine(v))
		case error:
			ev.Str(key, SanitizeLogLine(v.Error()))
		default:
			ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
