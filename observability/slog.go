package observability

import (
	"context"
	"log/slog"
)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger. A nil logger discards everything.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.New(discardHandler{})
	}
	return slogLogger{l: l}
}

// discardHandler mirrors slog.DiscardHandler (Go 1.24+) for older toolchains.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func (s slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, attr(f))
	}
	return slogLogger{l: s.l.With(args...)}
}

func (s slogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, attr(f))
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}

func attr(f Field) slog.Attr {
	switch v := f.Value().(type) {
	case string:
		return slog.String(f.Key(), v)
	case int:
		return slog.Int(f.Key(), v)
	case int64:
		return slog.Int64(f.Key(), v)
	case float64:
		return slog.Float64(f.Key(), v)
	case bool:
		return slog.Bool(f.Key(), v)
	case error:
		if v == nil {
			return slog.String(f.Key(), "<nil>")
		}
		return slog.String(f.Key(), v.Error())
	default:
		return slog.Any(f.Key(), v)
	}
}

// ParseLevel maps the textual levels accepted by the CLI onto slog levels.
func ParseLevel(s string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}
