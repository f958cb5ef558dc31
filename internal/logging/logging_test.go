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
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("event handler failed", "event_type", "tps_update")
	if !strings.Contains(buf.String(), `"event_type":"tps_update"`) {
		t.Fatalf("json output: %s", buf.String())
	}
	buf.Reset()
	newLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	newLogger(&buf, "warn", "text").Warn("kept", "key", "tps_survival")
	if !strings.Contains(buf.String(), "key=tps_survival") {
		t.Fatalf("text output: %s", buf.String())
	}
}
