package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":    LogLevelDebug,
		"info":     LogLevelInfo,
		"warn":     LogLevelWarn,
		"warning":  LogLevelWarn,
		"error":    LogLevelError,
		"":         LogLevelInfo,
		"VERBOSE?": LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSlogAdapterFormatsPrintfArgs(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))

	adapter.Info("registry created session user_id=%s run_id=%s", "u1", "r1")

	out := buf.String()
	if !strings.Contains(out, "user_id=u1") {
		t.Fatalf("message args not formatted into the message: %q", out)
	}
	if strings.Contains(out, "BADKEY") {
		t.Fatalf("args must not be forwarded as attribute pairs: %q", out)
	}
}

func TestRuntimeLoggerContextualScoping(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	scoped := l.WithComponent("engine").WithUser("u1").WithRun("r1", "q1")
	scoped.Info("engine started id=%s", "e1")

	out := buf.String()
	for _, want := range []string{
		`"component":"engine"`,
		`"user_id":"u1"`,
		`"run_id":"r1"`,
		`"request_id":"q1"`,
		"engine started id=e1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %q", want, out)
		}
	}

	// Scoping clones; the parent logger stays unscoped.
	buf.Reset()
	l.Info("plain")
	if strings.Contains(buf.String(), `"user_id"`) {
		t.Fatal("scoping leaked into the parent logger")
	}
}

func TestRuntimeLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-level messages must be dropped, got %q", buf.String())
	}

	l.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatal("warn message missing")
	}
}
