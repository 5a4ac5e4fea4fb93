package log

import (
	"context"

	"github.com/rs/zerolog"
)

type scopeKey struct{}

// Into attaches l to ctx.
func Into(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, scopeKey{}, l)
}

// Ctx returns the logger attached to ctx, or the process logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(scopeKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// Tag returns a ctx whose logger carries key=value on every line.
func Tag(ctx context.Context, key, value string) context.Context {
	l := Ctx(ctx)
	return Into(ctx, l.With().Str(key, value).Logger())
}
