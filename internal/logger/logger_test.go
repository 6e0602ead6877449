package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, &buf, "")

	l.Debug("debug line")
	l.Info("info line")
	l.Warn("warn line")
	l.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("lines below warn should be suppressed, got: %s", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("warn and error lines should be written, got: %s", out)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, &buf, "connect")

	l.WithPrefix("queue").Info("ready")

	if !strings.Contains(buf.String(), "[connect:queue]") {
		t.Errorf("expected combined prefix, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"none":    LevelNone,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNilWriterDisabled(t *testing.T) {
	l := New(LevelDebug, nil, "")
	// Must not panic and must report disabled behavior via level.
	l.Info("dropped")
	if l.GetLevel() != LevelNone {
		t.Errorf("nil writer logger should report LevelNone, got %v", l.GetLevel())
	}
}

func TestSlogHandlerForwarding(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, &buf, "rpc")

	s := slog.New(NewSlogHandler(l))
	s.Info("call finished", "method", "identity/me/scopes", "tries", 2)

	out := buf.String()
	if !strings.Contains(out, "call finished") {
		t.Fatalf("expected forwarded message, got: %s", out)
	}
	if !strings.Contains(out, "method=identity/me/scopes") || !strings.Contains(out, "tries=2") {
		t.Errorf("expected formatted attrs, got: %s", out)
	}
}
