package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// levelTrace sits below debug; watermill traces every message.
const levelTrace = slog.LevelDebug - 4

// slogAdapter routes watermill's logs through slog.
type slogAdapter struct {
	l *slog.Logger
}

var _ watermill.LoggerAdapter = slogAdapter{}

func newSlogAdapter(l *slog.Logger) slogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return slogAdapter{l: l.With(slog.String("component", "pubsub"))}
}

func (a slogAdapter) log(level slog.Level, msg string, fields watermill.LogFields, extra ...any) {
	args := make([]any, 0, 2*len(fields)+len(extra))
	for k, v := range fields {
		args = append(args, k, v)
	}
	a.l.Log(context.Background(), level, msg, append(args, extra...)...)
}

func (a slogAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log(slog.LevelError, msg, fields, "error", err)
}

// Info is logged at debug: watermill reports every subscription and every
// publish without subscribers at this level.
func (a slogAdapter) Info(msg string, fields watermill.LogFields) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a slogAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a slogAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log(levelTrace, msg, fields)
}

func (a slogAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return slogAdapter{l: a.l.With(args...)}
}
