package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `logging:
  level: debug
  format: json
sink:
  codec: cbor
  redis:
    addr: 127.0.0.1:6379
    channel_prefix: "sb:"
  kafka:
    brokers: [k1:9092, k2:9092]
    topic: telegram
bots:
  - name: main
    token: vault:main_token
    mode: webhook
    poll_interval: 1s
    update_kinds: [message, callback_query]
    allowed_usernames: context.admins
    allowed_chat_ids: "42,-100"
    context:
      admins: [alice, bob]
    probe_interval: 5m
    menu: true
    webhook:
      listen_port: 8443
      public_url: https://bot.example.com
      secret_token: abc
    commands:
      - pattern: /start
        description: Start the bot
        strict_group_matching: true
      - pattern: /ask
        expects_response: true
        scope: all_private_chats
  - name: second
    token: "123:abc"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(New(), writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Vault.Path != "vault.enc" {
		t.Errorf("vault path default = %q", cfg.Vault.Path)
	}
	if cfg.Sink.Codec != "cbor" || cfg.Sink.Redis.Prefix != "sb:" || !cfg.Sink.Log {
		t.Errorf("sink = %+v", cfg.Sink)
	}
	if len(cfg.Sink.Kafka.Brokers) != 2 || cfg.Sink.Kafka.Topic != "telegram" {
		t.Errorf("kafka = %+v", cfg.Sink.Kafka)
	}
	if len(cfg.Bots) != 2 {
		t.Fatalf("bots = %d, want 2", len(cfg.Bots))
	}

	primary := cfg.Bots[0]
	if primary.Mode != "webhook" || primary.PollInterval != time.Second || primary.ProbeInterval != 5*time.Minute {
		t.Errorf("primary = %+v", primary)
	}
	if len(primary.UpdateKinds) != 2 || primary.UpdateKinds[1] != "callback_query" {
		t.Errorf("update kinds = %v", primary.UpdateKinds)
	}
	if primary.Webhook.ListenPort != 8443 || primary.Webhook.SecretToken != "abc" {
		t.Errorf("webhook = %+v", primary.Webhook)
	}
	if _, ok := primary.Context["admins"]; !ok {
		t.Errorf("context = %v", primary.Context)
	}
	if len(primary.Commands) != 2 || !primary.Commands[0].StrictGroupMatching || !primary.Commands[1].ExpectsResponse {
		t.Errorf("commands = %+v", primary.Commands)
	}
	if primary.Commands[1].Scope != "all_private_chats" {
		t.Errorf("scope = %q", primary.Commands[1].Scope)
	}

	second, ok := cfg.Bot("second")
	if !ok {
		t.Fatal("Bot(second) not found")
	}
	if second.Mode != "polling" || second.PollInterval != 300*time.Millisecond {
		t.Errorf("defaults not applied: %+v", second)
	}
	if _, ok := cfg.Bot("missing"); ok {
		t.Error("Bot(missing) found")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SWITCHBOARD_LOGGING_LEVEL", "warn")
	t.Setenv("SWITCHBOARD_VAULT_PATH", "/run/secrets/vault.enc")
	cfg, err := Load(New(), writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want env override", cfg.Logging.Level)
	}
	if cfg.Vault.Path != "/run/secrets/vault.enc" {
		t.Errorf("vault path = %q", cfg.Vault.Path)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Bots) != 0 || cfg.Logging.Format != "text" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "bots: [", "read"},
		{"missing name", "bots:\n  - token: x\n", "name is required"},
		{"duplicate name", "bots:\n  - name: a\n  - name: a\n", "duplicate name"},
		{"unknown mode", "bots:\n  - name: a\n    mode: carrier_pigeon\n", "unknown mode"},
		{"bad regex", "bots:\n  - name: a\n    commands:\n      - pattern: \"(\"\n        use_regex: true\n", "compile"},
		{"empty pattern", "bots:\n  - name: a\n    commands:\n      - description: x\n", "empty pattern"},
		{"unknown codec", "sink:\n  codec: xml\n", "unknown codec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Logging{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "component", "test")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record passed a warn logger")
	}
	if !strings.Contains(out, `"msg":"kept"`) {
		t.Errorf("json output = %s", out)
	}

	for _, bad := range []Logging{{Level: "loud"}, {Format: "xml"}} {
		if _, err := NewLogger(bad, &buf); err == nil {
			t.Errorf("NewLogger(%+v) succeeded", bad)
		}
	}
}

func TestSave_LoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	err := Save(Template{
		BotName:          "main",
		TokenRef:         "vault:main_token",
		AllowedUsernames: "alice",
		CommandsFile:     "commands.yaml",
		VaultPath:        "vault.enc",
	}, path)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 0600", info.Mode().Perm())
	}

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, ok := cfg.Bot("main")
	if !ok {
		t.Fatal("bot missing")
	}
	if b.Token != "vault:main_token" || b.Mode != "polling" || !b.Menu || b.CommandsFile != "commands.yaml" {
		t.Errorf("bot = %+v", b)
	}
}

func TestSave_WriteError(t *testing.T) {
	orig := atomicWrite
	atomicWrite = func(string, []byte, os.FileMode) error { return errors.New("disk full") }
	t.Cleanup(func() { atomicWrite = orig })

	err := Save(Template{BotName: "main"}, "ignored.yaml")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
}

func TestSave_MarshalError(t *testing.T) {
	orig := yamlMarshal
	yamlMarshal = func(any) ([]byte, error) { return nil, errors.New("marshal boom") }
	t.Cleanup(func() { yamlMarshal = orig })

	if err := Save(Template{BotName: "main"}, "ignored.yaml"); err == nil || !strings.Contains(err.Error(), "render") {
		t.Fatalf("err = %v", err)
	}
}
