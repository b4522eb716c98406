package diag

import (
	"bytes"
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and mirrors every formatted record
// into a Ring, so the last N log lines survive past an abnormal process
// exit for WriteCrashDump to archive.
type Handler struct {
	next slog.Handler
	ring *Ring
	fmt  func(slog.Record) string
}

// NewHandler wraps next, tapping every record into ring.
func NewHandler(next slog.Handler, ring *Ring) *Handler {
	return &Handler{next: next, ring: ring, fmt: formatRecord}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	h.ring.Add(h.fmt(r))
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs), ring: h.ring, fmt: h.fmt}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), ring: h.ring, fmt: h.fmt}
}

// formatRecord renders a record as a single plain-text line, independent
// of whatever format the wrapped handler emits downstream.
func formatRecord(r slog.Record) string {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')
	buf.WriteString(r.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(a.Value.String())
		return true
	})
	return buf.String()
}
