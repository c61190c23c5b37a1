package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConsoleHandlerFormatsComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))
	logger = NewComponentLogger(logger, "evaluator")

	logger.Info("achievement unlocked", String(FieldAchievementID, "boot_master"), String("note", "two words"))

	line := buf.String()
	if !strings.Contains(line, " INFO evaluator: achievement unlocked") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, "achievement_id=boot_master") {
		t.Fatalf("missing achievement field: %q", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Fatalf("expected quoted value: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should render as prefix only: %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	WarnWithContext(logger, "delivery failed", "notification_delivery_failed", Error(errors.New("boom")))
	line := buf.String()
	for _, want := range []string{"WARN", "event_type=notification_delivery_failed", "error_hint=", "impact=", "error=boom"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestConsoleHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar), false))
	logger.WithGroup("queue").Info("state", Int("len", 3))
	if !strings.Contains(buf.String(), "queue.len=3") {
		t.Fatalf("expected grouped key, got %q", buf.String())
	}
}

func TestFanoutHandlerWritesToEveryChild(t *testing.T) {
	var console, jsonOut bytes.Buffer
	lvl := new(slog.LevelVar)
	h := newFanoutHandler(nil, newConsoleHandler(&console, lvl, false), newJSONHandler(&jsonOut, lvl, false))
	slog.New(h).With(String("k", "v")).Info("hello")

	if !strings.Contains(console.String(), "hello k=v") {
		t.Fatalf("console output missing: %q", console.String())
	}
	if !strings.Contains(jsonOut.String(), `"msg":"hello"`) || !strings.Contains(jsonOut.String(), `"k":"v"`) {
		t.Fatalf("json output missing: %q", jsonOut.String())
	}
}

func TestFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for nil children")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if newFanoutHandler(nil, inner) != inner {
		t.Fatal("expected single child returned unwrapped")
	}
}

type failingHandler struct {
	slog.Handler
	err error
}

func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }

func TestFanoutHandlerReportsEveryChildError(t *testing.T) {
	var out bytes.Buffer
	lvl := new(slog.LevelVar)
	errA := errors.New("disk full")
	errB := errors.New("pipe closed")
	h := newFanoutHandler(
		failingHandler{Handler: newJSONHandler(&bytes.Buffer{}, lvl, false), err: errA},
		newConsoleHandler(&out, lvl, false),
		failingHandler{Handler: newJSONHandler(&bytes.Buffer{}, lvl, false), err: errB},
	)

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both child errors, got %v", err)
	}
	if !strings.Contains(out.String(), "hello") {
		t.Fatalf("healthy child must still receive the record: %q", out.String())
	}
}

func TestFanoutHandlerEmptyGroupAndAttrsReturnSelf(t *testing.T) {
	lvl := new(slog.LevelVar)
	h := newFanoutHandler(newJSONHandler(&bytes.Buffer{}, lvl, false), newJSONHandler(&bytes.Buffer{}, lvl, false))
	if h.WithGroup("") != h {
		t.Fatal("WithGroup(\"\") must return the receiver")
	}
	if h.WithAttrs(nil) != h {
		t.Fatal("WithAttrs(nil) must return the receiver")
	}
	if h.WithGroup("g") == h {
		t.Fatal("WithGroup with a name must return a new handler")
	}
}

func TestWithSessionStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSession(slog.New(slog.NewJSONHandler(&buf, nil)), "run-123")
	logger.With("extra", "value").Info("started")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"run-123"`) || !strings.Contains(out, `"extra":"value"`) {
		t.Fatalf("unexpected output: %s", out)
	}
	if WithSession(nil, "x") == nil {
		t.Fatal("expected nop logger for nil base")
	}
}

func TestNewWritesJSONToFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sweetexp.log")
	logger, err := New(Options{Level: "debug", Format: "console", OutputPaths: []string{path, path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("written", Int("n", 1))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Fatalf("expected duplicate paths to be collapsed, got %q", data)
	}
	if !strings.Contains(string(data), `"level":"debug"`) || !strings.Contains(string(data), `"ts":`) {
		t.Fatalf("expected json line, got %q", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	if logger.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop handler to be disabled")
	}
}

func TestAuditEventLines(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	audit := NewAudit(&buf, func() time.Time { return fixed })

	if err := audit.Event("Engine started"); err != nil {
		t.Fatalf("Event: %v", err)
	}
	if err := audit.Event("Achievement unlocked", String(FieldAchievementID, "boot_master")); err != nil {
		t.Fatalf("Event: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "[2026-03-04 05:06:07] Engine started" {
		t.Fatalf("unexpected first line: %q", lines[0])
	}
	if lines[1] != "[2026-03-04 05:06:07] Achievement unlocked achievement_id=boot_master" {
		t.Fatalf("unexpected second line: %q", lines[1])
	}
}

func TestOpenAuditAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	for i := 0; i < 2; i++ {
		audit, err := OpenAudit(path)
		if err != nil {
			t.Fatalf("OpenAudit: %v", err)
		}
		if err := audit.Event("Engine stopped"); err != nil {
			t.Fatalf("Event: %v", err)
		}
		if err := audit.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := audit.Event("after close"); err != nil {
			t.Fatalf("Event after close: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	if strings.Count(string(data), "Engine stopped") != 2 {
		t.Fatalf("expected appended lines, got %q", data)
	}
	if strings.Contains(string(data), "after close") {
		t.Fatalf("closed audit should discard events, got %q", data)
	}

	var nilAudit *Audit
	if err := nilAudit.Event("ignored"); err != nil {
		t.Fatalf("nil audit should discard, got %v", err)
	}
}
