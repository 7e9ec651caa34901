package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"tipbot/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "gateway.service").Info("Command completed", "sender", "@alice:example.com", "ok", true)

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
	if entry.Message != "Command completed" {
		t.Fatalf("message = %q, want %q", entry.Message, "Command completed")
	}
	if entry.Component != "gateway.service" {
		t.Fatalf("component = %q, want %q", entry.Component, "gateway.service")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if got := entry.Fields["sender"]; got != "@alice:example.com" {
		t.Fatalf("fields.sender = %v, want %q", got, "@alice:example.com")
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
	t.Setenv("TIPBOT_LOG_LEVEL", "debug")
	t.Setenv("TIPBOT_LOG_FORMAT", "text")
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

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv("TIPBOT_LOG_LEVEL")
	_ = os.Unsetenv("TIPBOT_LOG_FORMAT")
	_ = os.Unsetenv("TIPBOT_LOG_ADD_SOURCE")
}

func TestComponentFallsBackToDefault(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	base, err := newWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	Component(base, "payment.orchestrator").Info("Balance fetched")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry.Component != "payment.orchestrator" {
		t.Fatalf("component = %q, want %q", entry.Component, "payment.orchestrator")
	}

	if Component(nil, "x") == nil {
		t.Fatal("expected default-backed logger for nil input")
	}
	Discard().Error("dropped")
}

func TestLoggerRedactsWalletSecrets(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("api_key", "admin-secret").Info("Wallet created",
		"wallet_id", "w1",
		"AdminKey", "spend-secret",
		slog.Group("wallet", "inkey", "read-secret", "name", "alice"),
	)

	text := out.String()
	for _, secret := range []string{"admin-secret", "spend-secret", "read-secret"} {
		if strings.Contains(text, secret) {
			t.Fatalf("log output leaked %q: %s", secret, text)
		}
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if got := entry.Fields["wallet_id"]; got != "w1" {
		t.Fatalf("fields.wallet_id = %v, want %q", got, "w1")
	}
	wallet, ok := entry.Fields["wallet"].(map[string]any)
	if !ok || wallet["name"] != "alice" || wallet["inkey"] != redacted {
		t.Fatalf("fields.wallet = %v", entry.Fields["wallet"])
	}
}

func TestTextLoggerRedactsTokens(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Logging in", "access_token", "syt_secret")
	if strings.Contains(out.String(), "syt_secret") {
		t.Fatalf("text output leaked token: %s", out.String())
	}
}
