package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"pearlbot/pkg/ncr"
)

const (
	envConfigPath       = "PEARLBOT_CONFIG"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envNCRKey           = "PEARLBOT_NCR_KEY"
	envNCRPassphrase    = "PEARLBOT_NCR_PASSPHRASE"
	envHTTPPassword     = "PEARLBOT_HTTP_PASSWORD"
	envGameURL          = "PEARLBOT_GAME_URL"
)

const (
	DefaultPrefix            = "!"
	DefaultChatPattern       = `^(?:\[[^\]]*\] )?<?([A-Za-z0-9_]{3,16})>?:? (?:> )?(whispers(?: to you)?: )?(.*)$`
	DefaultLookupBaseURL     = "https://api.2b2t.vc"
	DefaultLookupTimeout     = 25 * time.Second
	DefaultAuthLinkTimeout   = 25 * time.Second
	DefaultHTTPReplyTimeout  = 60 * time.Second
	DefaultReconnectInterval = 5 * time.Second
	DefaultStorePath         = "data/pearlbot.db"
	DefaultWorkers           = 8
)

// Config is the root runtime configuration loaded from config.json or config.toml.
type Config struct {
	Commands   CommandsConfig   `json:"commands" toml:"commands"`
	Encryption EncryptionConfig `json:"encryption" toml:"encryption"`
	Channels   ChannelsConfig   `json:"channels" toml:"channels"`
	Lookup     LookupConfig     `json:"lookup" toml:"lookup"`
	AuthLink   AuthLinkConfig   `json:"auth_link" toml:"auth_link"`
	Store      StoreConfig      `json:"store" toml:"store"`
	Gateway    GatewayConfig    `json:"gateway" toml:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty" toml:"logging"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" toml:"format"`
	Level     string `json:"level,omitempty" toml:"level"`
	AddSource bool   `json:"add_source,omitempty" toml:"add_source"`
}

// CommandsConfig controls command resolution and authorization.
type CommandsConfig struct {
	Prefix          string `json:"prefix" toml:"prefix"`
	CooldownSeconds int    `json:"cooldown_seconds" toml:"cooldown_seconds"`
	// Whitelist gates every command behind the allow-list when true.
	Whitelist bool `json:"whitelist" toml:"whitelist"`
}

// Cooldown returns the per-sender minimum interval between commands.
func (c CommandsConfig) Cooldown() time.Duration {
	if c.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

// EncryptionConfig configures the chat obfuscation layer.
type EncryptionConfig struct {
	Mode       string `json:"mode" toml:"mode"`
	Key        string `json:"key" toml:"key"`
	Passphrase string `json:"passphrase" toml:"passphrase"`
}

// ResolveMode parses Mode, defaulting to on_demand.
func (e EncryptionConfig) ResolveMode() (ncr.Mode, error) {
	return ncr.ParseMode(e.Mode)
}

// ResolveKey returns the passphrase-derived key when a passphrase is set, the
// configured base64 key otherwise, and the shared default key as a last resort.
func (e EncryptionConfig) ResolveKey() (ncr.Key, error) {
	if pass := strings.TrimSpace(e.Passphrase); pass != "" {
		return ncr.KeyFromPassphrase(pass), nil
	}
	if key := strings.TrimSpace(e.Key); key != "" {
		return ncr.ParseKey(key)
	}
	return ncr.ParseKey(ncr.DefaultKey)
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Game     GameConfig     `json:"game" toml:"game"`
	Telegram TelegramConfig `json:"telegram" toml:"telegram"`
	HTTP     HTTPConfig     `json:"http" toml:"http"`
}

// GameConfig configures the in-game chat channel and the game-client link.
type GameConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	URL     string `json:"url" toml:"url"`
	// Username is the bot's own player name; its chat lines are ignored.
	Username string `json:"username" toml:"username"`
	// WhispersOnly ignores commands typed in public chat.
	WhispersOnly bool `json:"whispers_only" toml:"whispers_only"`
	// ChatPattern parses raw lines from servers with custom chat formats. Group 1
	// is the sender name, group 2 the whisper marker, group 3 the content.
	ChatPattern      string `json:"chat_pattern" toml:"chat_pattern"`
	ReconnectSeconds int    `json:"reconnect_seconds" toml:"reconnect_seconds"`
}

// Reconnect returns the delay between game-link reconnect attempts.
func (g GameConfig) Reconnect() time.Duration {
	if g.ReconnectSeconds <= 0 {
		return DefaultReconnectInterval
	}
	return time.Duration(g.ReconnectSeconds) * time.Second
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Token   string `json:"token" toml:"token"`
	// LinkHelp is sent to senders whose account is not linked yet.
	LinkHelp string `json:"link_help" toml:"link_help"`
}

// HTTPConfig configures the local admin command endpoint.
type HTTPConfig struct {
	Enabled             bool   `json:"enabled" toml:"enabled"`
	Host                string `json:"host" toml:"host"`
	Port                int    `json:"port" toml:"port"`
	Password            string `json:"password" toml:"password"`
	ReplyTimeoutSeconds int    `json:"reply_timeout_seconds" toml:"reply_timeout_seconds"`
}

// ReplyTimeout bounds how long a request waits for its reply.
func (h HTTPConfig) ReplyTimeout() time.Duration {
	if h.ReplyTimeoutSeconds <= 0 {
		return DefaultHTTPReplyTimeout
	}
	return time.Duration(h.ReplyTimeoutSeconds) * time.Second
}

// LookupConfig configures the third-party player statistics API.
type LookupConfig struct {
	BaseURL        string `json:"base_url" toml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (l LookupConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return DefaultLookupTimeout
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// AuthLinkConfig configures the account-link code exchange service.
type AuthLinkConfig struct {
	BaseURL        string `json:"base_url" toml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (a AuthLinkConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return DefaultAuthLinkTimeout
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// StoreConfig locates the allow-list database.
type StoreConfig struct {
	Path string `json:"path" toml:"path"`
}

// GatewayConfig configures the status server and the handler worker pool.
type GatewayConfig struct {
	Host    string `json:"host" toml:"host"`
	Port    int    `json:"port" toml:"port"`
	Workers int    `json:"workers" toml:"workers"`
}

// LoadConfig resolves the config file, decodes it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile decodes one config file, picking the format from its extension.
func LoadFile(configPath string) (*Config, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Encryption.ResolveMode(); err != nil {
		errs = append(errs, fmt.Errorf("encryption.mode: %w", err))
	}
	if _, err := c.Encryption.ResolveKey(); err != nil {
		errs = append(errs, fmt.Errorf("encryption.key: %w", err))
	}
	if c.Channels.Game.Enabled && strings.TrimSpace(c.Channels.Game.URL) == "" {
		errs = append(errs, errors.New("channels.game.url is required when the game channel is enabled"))
	}
	if c.Channels.HTTP.Enabled && c.Channels.HTTP.Password == "" {
		errs = append(errs, errors.New("channels.http.password is required when the http channel is enabled"))
	}
	if strings.ContainsAny(c.Commands.Prefix, " \t\n") {
		errs = append(errs, errors.New("commands.prefix must not contain whitespace"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if key := strings.TrimSpace(os.Getenv(envNCRKey)); key != "" {
		cfg.Encryption.Key = key
	}
	if pass := os.Getenv(envNCRPassphrase); pass != "" {
		cfg.Encryption.Passphrase = pass
	}
	if password := os.Getenv(envHTTPPassword); password != "" {
		cfg.Channels.HTTP.Password = password
	}
	if url := strings.TrimSpace(os.Getenv(envGameURL)); url != "" {
		cfg.Channels.Game.URL = url
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Commands.Prefix == "" {
		cfg.Commands.Prefix = DefaultPrefix
	}
	if cfg.Channels.Game.ChatPattern == "" {
		cfg.Channels.Game.ChatPattern = DefaultChatPattern
	}
	if cfg.Lookup.BaseURL == "" {
		cfg.Lookup.BaseURL = DefaultLookupBaseURL
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Gateway.Workers <= 0 {
		cfg.Gateway.Workers = DefaultWorkers
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is PEARLBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
		filepath.Join(cwd, "config.toml"),
		filepath.Join(cwd, "config", "config.toml"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config file not found (checked %s)", strings.Join(candidates, ", "))
}
