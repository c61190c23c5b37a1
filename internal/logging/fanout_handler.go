package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler sends each record to every child that accepts its level. The
// daemon uses it to write console lines to stdout and JSON lines to its log file.
type fanoutHandler struct {
	children []slog.Handler
}

func newFanoutHandler(children ...slog.Handler) slog.Handler {
	var kept []slog.Handler
	for _, child := range children {
		if child != nil {
			kept = append(kept, child)
		}
	}
	switch len(kept) {
	case 0:
		return NoopHandler{}
	case 1:
		return kept[0]
	}
	return &fanoutHandler{children: kept}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.children {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle gives every child its own clone so attribute resolution in one
// output cannot leak into another. All child errors are reported.
func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.children {
		if child.Enabled(ctx, record.Level) {
			if err := child.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.each(func(child slog.Handler) slog.Handler { return child.WithAttrs(attrs) })
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.each(func(child slog.Handler) slog.Handler { return child.WithGroup(name) })
}

func (h *fanoutHandler) each(fn func(slog.Handler) slog.Handler) *fanoutHandler {
	next := make([]slog.Handler, len(h.children))
	for i, child := range h.children {
		next[i] = fn(child)
	}
	return &fanoutHandler{children: next}
}
