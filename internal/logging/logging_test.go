package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "json", &buf)
	if l.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("level=%s", l.GetLevel())
	}
	l.Info().Msg("dropped")
	l.Warn().Str("component", "test").Msg("kept")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if m["message"] != "kept" || m["component"] != "test" || m["level"] != "warn" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestNew_ConsoleAndFallbackLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("loud", "console", &buf)
	if l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level=%s", l.GetLevel())
	}
	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}
