package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestInitLoggerJSONWithComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := InitLogger(Config{Level: "info", Format: "json", Output: &buf})
	NewComponentLogger(logger, "pipeline").Info("pipeline_run_done", "outcome", "completed")

	out := buf.String()
	if !strings.Contains(out, `"component":"pipeline"`) {
		t.Fatalf("expected component attr, got %s", out)
	}
	if !strings.Contains(out, `"outcome":"completed"`) {
		t.Fatalf("expected outcome attr, got %s", out)
	}
}

func TestInitLoggerWarnsOnBadFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	InitLogger(Config{Level: "info", Format: "xml", Output: &buf})
	if !strings.Contains(buf.String(), "invalid log format") {
		t.Fatalf("expected format warning, got %s", buf.String())
	}
}
