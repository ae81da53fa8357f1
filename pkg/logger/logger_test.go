package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"pearlbot/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "channel.game").Info("Command received", "request_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Command received" {
		t.Fatalf("message = %q, want %q", entry.Message, "Command received")
	}
	if entry.Component != "channel.game" {
		t.Fatalf("component = %q, want %q", entry.Component, "channel.game")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["request_id"]; got != "42" {
		t.Fatalf("fields.request_id = %v, want %q", got, "42")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv("PEARLBOT_LOG_LEVEL", "debug")
	t.Setenv("PEARLBOT_LOG_FORMAT", "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func TestLoggerRedactsCredentials(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("token", "123:secret").Info("Auth attempt", "password", "hunter2", "user", "Alice")

	text := out.String()
	if strings.Contains(text, "hunter2") || strings.Contains(text, "123:secret") {
		t.Fatalf("expected credentials to be redacted, got %q", text)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["password"]; got != redacted {
		t.Fatalf("fields.password = %v, want %q", got, redacted)
	}
	if got := entry.Fields["user"]; got != "Alice" {
		t.Fatalf("fields.user = %v, want Alice", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview(" hello "); got != "hello" {
		t.Fatalf("Preview short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", previewLimit+20)
	got := Preview(long)
	if len(got) != previewLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("Preview long = %q, want truncated with ellipsis", got)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("PEARLBOT_LOG_LEVEL")
	_ = os.Unsetenv("PEARLBOT_LOG_FORMAT")
	_ = os.Unsetenv("PEARLBOT_LOG_ADD_SOURCE")
}
