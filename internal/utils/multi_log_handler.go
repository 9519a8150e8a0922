package utils

import (
	"context"
	"errors"
	"log/slog"
)

// MultiLogHandler fans every record out to a set of handlers, each applying its own level.
type MultiLogHandler struct {
	handlers []slog.Handler
}

func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	live := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	return &MultiLogHandler{handlers: live}
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards r to every interested handler. A failing handler does not stop the others.
func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h *MultiLogHandler) derive(fn func(slog.Handler) slog.Handler) *MultiLogHandler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = fn(handler)
	}
	return &MultiLogHandler{handlers: handlers}
}
