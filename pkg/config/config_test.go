package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pearlbot/pkg/ncr"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	unsetConfigEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "commands": {"prefix": "?", "cooldown_seconds": 5, "whitelist": true},
	  "encryption": {"mode": "always"},
	  "channels": {"game": {"enabled": true, "url": "ws://127.0.0.1:9000/link"}},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("PEARLBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Commands.Prefix != "?" {
		t.Fatalf("commands.prefix = %q, want %q", cfg.Commands.Prefix, "?")
	}
	if cfg.Commands.Cooldown() != 5*time.Second {
		t.Fatalf("cooldown = %v, want 5s", cfg.Commands.Cooldown())
	}
	if mode, _ := cfg.Encryption.ResolveMode(); mode != ncr.Always {
		t.Fatalf("encryption mode = %v, want always", mode)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" || !cfg.Logging.AddSource {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Channels.Game.ChatPattern != DefaultChatPattern {
		t.Fatal("expected default chat pattern")
	}
	if cfg.Lookup.Timeout() != DefaultLookupTimeout {
		t.Fatalf("lookup timeout = %v, want %v", cfg.Lookup.Timeout(), DefaultLookupTimeout)
	}
	if cfg.Gateway.Workers != DefaultWorkers {
		t.Fatalf("workers = %d, want %d", cfg.Gateway.Workers, DefaultWorkers)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	unsetConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[commands]
prefix = "#"
whitelist = false

[channels.http]
enabled = true
port = 8080
password = "hunter2"

[lookup]
timeout_seconds = 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Commands.Prefix != "#" {
		t.Fatalf("prefix = %q, want #", cfg.Commands.Prefix)
	}
	if !cfg.Channels.HTTP.Enabled || cfg.Channels.HTTP.Port != 8080 {
		t.Fatalf("http = %+v", cfg.Channels.HTTP)
	}
	if cfg.Lookup.Timeout() != 3*time.Second {
		t.Fatalf("lookup timeout = %v, want 3s", cfg.Lookup.Timeout())
	}
}

func TestEnvOverrides(t *testing.T) {
	unsetConfigEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("PEARLBOT_HTTP_PASSWORD", "from-env")
	t.Setenv("PEARLBOT_NCR_PASSPHRASE", "shared secret")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"channels": {"http": {"enabled": true}}}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "123:abc" {
		t.Fatalf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.HTTP.Password != "from-env" {
		t.Fatalf("http password = %q", cfg.Channels.HTTP.Password)
	}

	key, err := cfg.Encryption.ResolveKey()
	if err != nil {
		t.Fatalf("ResolveKey error: %v", err)
	}
	if string(key) != string(ncr.KeyFromPassphrase("shared secret")) {
		t.Fatal("expected passphrase-derived key")
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := &Config{
		Encryption: EncryptionConfig{Mode: "sometimes", Key: "AAAA"},
		Channels: ChannelsConfig{
			Game: GameConfig{Enabled: true},
			HTTP: HTTPConfig{Enabled: true},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestResolveKeyDefaults(t *testing.T) {
	key, err := EncryptionConfig{}.ResolveKey()
	if err != nil {
		t.Fatalf("ResolveKey error: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("default key len = %d, want 16", len(key))
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	unsetConfigEnv(t)
	t.Setenv("PEARLBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func unsetConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envConfigPath, envTelegramBotToken, envNCRKey, envNCRPassphrase, envHTTPPassword, envGameURL} {
		t.Setenv(key, "")
	}
}
