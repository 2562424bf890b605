package logger

import (
	"context"
	"log/slog"
)

// attrsKey keys the attribute slice a context carries for logging.
type attrsKey struct{}

// ContextWithAttrs returns a context carrying attrs. The *Ctx logging
// functions prepend carried attrs to every record, so a session tags
// all of its log lines once instead of repeating the fields at each
// call site. Nested calls accumulate, outermost attrs first.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := ContextAttrs(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// ContextAttrs returns the attributes carried by ctx, nil if none.
func ContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}
