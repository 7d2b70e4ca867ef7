package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the service.
// Each entry carries a message, a stable event name and an optional field map.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
	Sync() error
}

// NopLogger discards every entry.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
func (NopLogger) Sync() error                             { return nil }

// Options controls the zap backed logger.
type Options struct {
	Level  string
	Format string // json or console
}

type zapLogger struct {
	l *zap.Logger
}

// New builds a zap backed Logger.
func New(opts Options) (Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{l: l}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return &zapLogger{l: l}
}

func parseLevel(raw string) (zapcore.Level, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
	return lvl, nil
}

func (z *zapLogger) DebugObj(msg, event string, fields map[string]any) {
	z.l.Debug(msg, toFields(event, fields)...)
}

func (z *zapLogger) InfoObj(msg, event string, fields map[string]any) {
	z.l.Info(msg, toFields(event, fields)...)
}

func (z *zapLogger) WarnObj(msg, event string, fields map[string]any) {
	z.l.Warn(msg, toFields(event, fields)...)
}

func (z *zapLogger) ErrorObj(msg, event string, fields map[string]any) {
	z.l.Error(msg, toFields(event, fields)...)
}

func (z *zapLogger) Sync() error {
	return z.l.Sync()
}

// toFields converts the field map into zap fields with stable key order.
func toFields(event string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if event != "" {
		out = append(out, zap.String("event", event))
	}
	if len(fields) == 0 {
		return out
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// Ensure returns log or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
