package logging

import (
	"context"
	"log/slog"
	"strings"
)

// sessionHandler stamps every record with the engine run's session ID.
type sessionHandler struct {
	next      slog.Handler
	sessionID string
}

// WithSession returns a logger whose records all carry session_id. An empty
// ID returns logger unchanged.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return logger
	}
	return slog.New(&sessionHandler{next: logger.Handler(), sessionID: sessionID})
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	return h.next.Handle(ctx, record)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{next: h.next.WithAttrs(attrs), sessionID: h.sessionID}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	return &sessionHandler{next: h.next.WithGroup(name), sessionID: h.sessionID}
}
