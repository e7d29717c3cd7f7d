package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "headlag", nil)

	log.Info(context.Background(), "block received", "block", 100, "lag", "+10.0000")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}

	if record["msg"] != "block received" {
		t.Errorf("unexpected msg: %v", record["msg"])
	}
	if record["service"] != "headlag" {
		t.Errorf("unexpected service: %v", record["service"])
	}
	if record["lag"] != "+10.0000" {
		t.Errorf("unexpected lag: %v", record["lag"])
	}
	if file, _ := record["file"].(string); !strings.HasPrefix(file, "logger_test.go:") {
		t.Errorf("expected caller file, got %v", record["file"])
	}
}

func TestLogger_FiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "", nil)

	log.Debug(context.Background(), "debug")
	log.Info(context.Background(), "info")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}

	log.Warn(context.Background(), "warn")
	if buf.Len() == 0 {
		t.Fatal("expected warn to be written")
	}
}

func TestLogger_TraceID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "", func(context.Context) string { return "abc123" })

	log.Error(context.Background(), "session failed")

	if !strings.Contains(buf.String(), `"trace_id":"abc123"`) {
		t.Errorf("expected trace id in %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
