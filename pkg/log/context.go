package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// ctxLogger remembers which fields were bound to the logger so that a
// second binding of the same key is a no-op. zerolog appends fields and
// would otherwise emit duplicate JSON keys.
type ctxLogger struct {
	logger zerolog.Logger
	fields map[string]struct{}
}

// WithLogger stores a logger in the context. fields names the keys the
// caller already bound on logger.
func WithLogger(ctx context.Context, logger zerolog.Logger, fields ...string) context.Context {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return context.WithValue(ctx, ctxKey{}, &ctxLogger{logger: logger, fields: set})
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if cl, ok := ctx.Value(ctxKey{}).(*ctxLogger); ok {
		return cl.logger
	}
	return L()
}

// HasField reports whether the context logger already carries key.
func HasField(ctx context.Context, key string) bool {
	cl, ok := ctx.Value(ctxKey{}).(*ctxLogger)
	if !ok {
		return false
	}
	_, bound := cl.fields[key]
	return bound
}

// WithStr derives a child of the context logger carrying key=value.
// The context is returned unchanged if key is already bound.
func WithStr(ctx context.Context, key, value string) context.Context {
	return bind(ctx, key, func(c zerolog.Context) zerolog.Context { return c.Str(key, value) })
}

// WithInt64 is WithStr for integer fields such as user and room ids.
func WithInt64(ctx context.Context, key string, value int64) context.Context {
	return bind(ctx, key, func(c zerolog.Context) zerolog.Context { return c.Int64(key, value) })
}

func bind(ctx context.Context, key string, add func(zerolog.Context) zerolog.Context) context.Context {
	parent, _ := ctx.Value(ctxKey{}).(*ctxLogger)
	if parent != nil {
		if _, ok := parent.fields[key]; ok {
			return ctx
		}
	}

	base := L()
	fields := make(map[string]struct{}, 1)
	if parent != nil {
		base = parent.logger
		for f := range parent.fields {
			fields[f] = struct{}{}
		}
	}
	fields[key] = struct{}{}

	return context.WithValue(ctx, ctxKey{}, &ctxLogger{
		logger: add(base.With()).Logger(),
		fields: fields,
	})
}
