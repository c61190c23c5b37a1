package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const auditTimeLayout = "2006-01-02 15:04:05"

// Audit appends human-readable event lines of the form
//
//	[2026-01-02 15:04:05] Achievement unlocked achievement_id=boot_master
//
// to the engine log. A nil *Audit discards events.
type Audit struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// OpenAudit opens path for appending, creating parent directories as needed.
func OpenAudit(path string) (*Audit, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Audit{w: file, closer: file, now: time.Now}, nil
}

// NewAudit writes audit lines to w. now defaults to time.Now.
func NewAudit(w io.Writer, now func() time.Time) *Audit {
	if now == nil {
		now = time.Now
	}
	return &Audit{w: w, now: now}
}

// Event appends one line. Attribute values are rendered like console log fields.
func (a *Audit) Event(msg string, attrs ...Attr) error {
	if a == nil || a.w == nil {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(a.now().Local().Format(auditTimeLayout))
	buf.WriteString("] ")
	buf.WriteString(msg)

	kvs := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		flattenAttr(&kvs, nil, slog.Attr(attr))
	}
	for _, item := range kvs {
		buf.WriteByte(' ')
		buf.WriteString(item.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(item.value))
	}
	buf.WriteByte('\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return nil
}

// Close releases the underlying file when the audit log owns one.
func (a *Audit) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.closer.Close()
	a.closer = nil
	a.w = nil
	return err
}
