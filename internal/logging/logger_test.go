package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Output: &buf, JSON: true})
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, log := range []struct {
			fn  func(string, ...any)
			msg string
		}{
			{logger.Debug, "debug msg"},
			{logger.Info, "info msg"},
			{logger.Warn, "warn msg"},
			{logger.Error, "error msg"},
		} {
			buf.Reset()
			log.fn(log.msg)
			if !strings.Contains(buf.String(), log.msg) {
				t.Errorf("%q not logged", log.msg)
			}
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("versions").Info("msg")
		if !strings.Contains(buf.String(), `"component":"versions"`) {
			t.Errorf("WithComponent missing component field: %s", buf.String())
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("save", "version:7", "device", "edge-1")
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") || !strings.Contains(logStr, "version:7") || !strings.Contains(logStr, "edge-1") {
			t.Errorf("Audit log incomplete: %s", logStr)
		}
	})
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf}).WithComponent("API")

	l.Info("session created", "id", "abc", "device", "edge 1")

	line := buf.String()
	for _, want := range []string{"ruledit[", "[info] api: session created", "id=abc", `device="edge 1"`} {
		if !strings.Contains(line, want) {
			t.Errorf("console line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be promoted to the header: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("console line should end with a newline")
	}
}

func TestConsoleHandlerAttrsDoNotAlias(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf}).With("a", "1")
	left := base.With("b", "2")
	_ = base.With("c", "3")

	left.Info("x")
	if strings.Contains(buf.String(), "c=3") {
		t.Errorf("sibling attrs leaked: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	prev := Default()
	SetDefault(New(cfg))
	defer SetDefault(prev)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	WithComponent("comp").Info("comp msg")

	if !strings.Contains(buf.String(), "comp: comp msg") {
		t.Errorf("Default logger output unexpected: %s", buf.String())
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" || data["key"] != "value" || data["level"] != "INFO" {
		t.Errorf("unexpected JSON log: %v", data)
	}
}
