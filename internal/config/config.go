// Package config loads the router configuration from YAML, environment
// variables and bound command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/edouard/switchboard/internal/command"
	"github.com/edouard/switchboard/internal/sink"
	"github.com/edouard/switchboard/internal/supervisor"
)

// EnvPrefix prefixes every environment override, e.g.
// SWITCHBOARD_LOGGING_LEVEL=debug.
const EnvPrefix = "SWITCHBOARD"

// Logging selects the slog handler.
type Logging struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// Vault locates the encrypted token store.
type Vault struct {
	Path string `mapstructure:"path"`
}

// Bot configures one bot instance.
type Bot struct {
	Name             string                   `mapstructure:"name"`
	Token            string                   `mapstructure:"token"`
	Mode             string                   `mapstructure:"mode"`
	PollInterval     time.Duration            `mapstructure:"poll_interval"`
	UpdateKinds      []string                 `mapstructure:"update_kinds"`
	AllowedUsernames string                   `mapstructure:"allowed_usernames"`
	AllowedChatIDs   string                   `mapstructure:"allowed_chat_ids"`
	Context          map[string]any           `mapstructure:"context"`
	CommandsFile     string                   `mapstructure:"commands_file"`
	Menu             bool                     `mapstructure:"menu"`
	ProbeInterval    time.Duration            `mapstructure:"probe_interval"`
	Webhook          supervisor.WebhookConfig `mapstructure:"webhook"`
	Commands         []command.Registration   `mapstructure:"commands"`
}

// Config is the whole router configuration.
type Config struct {
	Logging Logging     `mapstructure:"logging"`
	Vault   Vault       `mapstructure:"vault"`
	Sink    sink.Config `mapstructure:"sink"`
	Bots    []Bot       `mapstructure:"bots"`
}

// Replaceable for testing.
var statFile = os.Stat

// New returns a viper instance carrying the defaults and env binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("vault.path", "vault.enc")
	v.SetDefault("sink.codec", "json")
	v.SetDefault("sink.log", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		if _, err := statFile(path); err != nil {
			return nil, fmt.Errorf("config: load: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: load: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: load: decode: %w", err)
	}
	for i := range cfg.Bots {
		cfg.Bots[i].applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Info("config loaded", "component", "config", "operation", "load", "path", path, "bots", len(cfg.Bots))
	return &cfg, nil
}

func (b *Bot) applyDefaults() {
	if b.Mode == "" {
		b.Mode = string(supervisor.ModePolling)
	}
	if b.PollInterval <= 0 {
		b.PollInterval = supervisor.DefaultPollInterval
	}
}

// Validate reports configuration errors that make a bot impossible to
// construct. Incomplete webhook settings are not among them: the
// supervisor downgrades such a bot to send-only.
func (c *Config) Validate() error {
	if _, err := sink.CodecByName(c.Sink.Codec); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}
	var errs []error
	seen := make(map[string]bool, len(c.Bots))
	for i, b := range c.Bots {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("bots[%d]: name is required", i))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("bots[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if _, err := supervisor.ParseMode(b.Mode); err != nil {
			errs = append(errs, fmt.Errorf("bot %s: %w", b.Name, err))
		}
		for j := range b.Commands {
			if err := b.Commands[j].Compile(); err != nil {
				errs = append(errs, fmt.Errorf("bot %s: commands[%d]: %w", b.Name, j, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}

// Bot returns the bot named name.
func (c *Config) Bot(name string) (*Bot, bool) {
	for i := range c.Bots {
		if c.Bots[i].Name == name {
			return &c.Bots[i], true
		}
	}
	return nil, false
}

// NewLogger builds the slog logger described by l, writing to w.
func NewLogger(l Logging, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: l.AddSource}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("config: unknown logging.format: %s", l.Format)
	}
	return slog.New(h), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown logging.level: %s", s)
}
