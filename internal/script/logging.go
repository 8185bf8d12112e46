package script

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// opsLogger provides structured logging for script operations.
type opsLogger struct {
	base *slog.Logger
}

func newOpsLogger(l *slog.Logger) *opsLogger {
	if l == nil {
		l = slog.Default()
	}
	return &opsLogger{base: l.With(slog.String("component", "script_ops"))}
}

// operation logs the outcome of a single facade call.
func (l *opsLogger) operation(ctx context.Context, op, name string, started time.Time, err error, attrs ...slog.Attr) {
	fields := make([]slog.Attr, 0, 5+len(attrs))
	fields = append(fields,
		slog.String("event", "script_"+op),
		slog.String("script", name),
		slog.Duration("duration", time.Since(started)),
	)
	fields = append(fields, attrs...)

	if err == nil {
		l.base.LogAttrs(ctx, slog.LevelDebug, "Script operation completed", fields...)
		return
	}

	fields = append(fields, slog.String("error", err.Error()))
	level := slog.LevelError
	// Caller mistakes and lookups of unknown names are not server faults.
	var se *ScriptError
	if errors.As(err, &se) {
		switch se.Kind {
		case ErrInvalidName, ErrInvalidScript, ErrMalformedScript, ErrNotFound:
			level = slog.LevelWarn
		}
	}
	l.base.LogAttrs(ctx, level, "Script operation failed", fields...)
}

// lifecycle logs directory sync and watch events.
func (l *opsLogger) lifecycle(ctx context.Context, level slog.Level, msg, action, name, path string, err error) {
	fields := []slog.Attr{
		slog.String("event", "script_"+action),
		slog.String("script", name),
		slog.String("file_path", path),
	}
	if err != nil {
		fields = append(fields, slog.String("error", err.Error()))
	}
	l.base.LogAttrs(ctx, level, msg, fields...)
}
