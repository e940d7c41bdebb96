package notify

import (
	"context"
	"log/slog"
)

// Handler is an slog.Handler that promotes warnings and errors into the
// notice feed and delegates every record to an inner handler.
type Handler struct {
	inner     slog.Handler
	center    *Center
	component string
}

// NewHandler creates a handler that writes to both center and inner.
func NewHandler(inner slog.Handler, center *Center) *Handler {
	return &Handler{inner: inner, center: center}
}

func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool {
	// Always true so the feed sees warnings even when the inner
	// handler's level filter would drop them.
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		h.center.Push(r.Level, r.Message, h.component)
	}
	if h.inner.Enabled(ctx, r.Level) {
		return h.inner.Handle(ctx, r)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &Handler{
		inner:     h.inner.WithAttrs(attrs),
		center:    h.center,
		component: h.component,
	}
	for _, a := range attrs {
		if a.Key == "component" {
			next.component = a.Value.Resolve().String()
		}
	}
	return next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:     h.inner.WithGroup(name),
		center:    h.center,
		component: h.component,
	}
}
