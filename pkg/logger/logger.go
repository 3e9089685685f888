// Package logger provides logging implementations for usergrid
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"

	"github.com/memtensor/usergrid/pkg/interfaces"
)

// Options configures a SlogLogger
type Options struct {
	Level   string
	File    string
	NoColor bool
	Output  io.Writer
}

// SlogLogger implements interfaces.Logger on top of log/slog
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	closer io.Closer
	exit   func(int)
}

// New creates a logger that writes coloured text to the console and,
// when File is set, JSON lines to that file as well.
func New(opts Options) (*SlogLogger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlers := []slog.Handler{
		tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		}),
	}

	var closer io.Closer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = slogmulti.Fanout(handlers...)
	}

	return &SlogLogger{
		logger: slog.New(handler),
		level:  level,
		closer: closer,
		exit:   os.Exit,
	}, nil
}

// ParseLevel maps a textual level onto slog. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level at runtime
func (l *SlogLogger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Level returns the current minimum level
func (l *SlogLogger) Level() slog.Level {
	return l.level.Level()
}

// Slog exposes the underlying slog logger
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

// Close releases the log file, if any
func (l *SlogLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Debug logs debug level messages
func (l *SlogLogger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelDebug, msg, fields...)
}

// Info logs info level messages
func (l *SlogLogger) Info(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelInfo, msg, fields...)
}

// Warn logs warning level messages
func (l *SlogLogger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(slog.LevelWarn, msg, fields...)
}

// Error logs error level messages
func (l *SlogLogger) Error(msg string, err error, fields ...map[string]interface{}) {
	var allFields []map[string]interface{}
	if err != nil {
		allFields = append(allFields, map[string]interface{}{"error": err.Error()})
	}
	allFields = append(allFields, fields...)
	l.log(slog.LevelError, msg, allFields...)
}

// Fatal logs fatal level messages and exits
func (l *SlogLogger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	l.Error(msg, err, fields...)
	l.exit(1)
}

// WithFields returns a logger with additional fields
func (l *SlogLogger) WithFields(fields map[string]interface{}) interfaces.Logger {
	return &SlogLogger{
		logger: l.logger.With(attrs(fields)...),
		level:  l.level,
		closer: l.closer,
		exit:   l.exit,
	}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields ...map[string]interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var args []any
	for _, fieldMap := range fields {
		args = append(args, attrs(fieldMap)...)
	}
	l.logger.Log(ctx, level, msg, args...)
}

// attrs converts a field map into slog attributes in key order
func attrs(fields map[string]interface{}) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]any, 0, len(keys))
	for _, key := range keys {
		out = append(out, slog.Any(key, fields[key]))
	}
	return out
}

var _ interfaces.Logger = (*SlogLogger)(nil)

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level string) interfaces.Logger {
	l, _ := New(Options{Level: level})
	return l
}

// NewTestLogger creates a logger for testing
func NewTestLogger() interfaces.Logger {
	l, _ := New(Options{Level: "debug", Output: io.Discard, NoColor: true})
	return l
}

// NewLogger creates a new logger with default settings
func NewLogger() interfaces.Logger {
	return NewConsoleLogger("info")
}
