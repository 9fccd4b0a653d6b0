package config

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/edouard/switchboard/internal/platform"
)

// configFilePerm keeps the file private: it may hold literal tokens.
const configFilePerm = 0o600

// Replaceable for testing error paths.
var (
	atomicWrite = platform.AtomicWrite
	yamlMarshal = yaml.Marshal
)

// Template holds the answers of the init wizard.
type Template struct {
	BotName          string
	TokenRef         string
	Mode             string
	AllowedUsernames string
	AllowedChatIDs   string
	CommandsFile     string
	VaultPath        string
}

type templateDoc struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Vault struct {
		Path string `yaml:"path"`
	} `yaml:"vault"`
	Sink struct {
		Codec string `yaml:"codec"`
		Log   bool   `yaml:"log"`
	} `yaml:"sink"`
	Bots []templateBot `yaml:"bots"`
}

type templateBot struct {
	Name             string `yaml:"name"`
	Token            string `yaml:"token"`
	Mode             string `yaml:"mode"`
	AllowedUsernames string `yaml:"allowed_usernames,omitempty"`
	AllowedChatIDs   string `yaml:"allowed_chat_ids,omitempty"`
	CommandsFile     string `yaml:"commands_file,omitempty"`
	Menu             bool   `yaml:"menu"`
}

// Render produces a starter configuration file.
func Render(t Template) ([]byte, error) {
	var doc templateDoc
	doc.Logging.Level = "info"
	doc.Logging.Format = "text"
	doc.Vault.Path = t.VaultPath
	doc.Sink.Codec = "json"
	doc.Sink.Log = true
	mode := t.Mode
	if mode == "" {
		mode = "polling"
	}
	doc.Bots = []templateBot{{
		Name:             t.BotName,
		Token:            t.TokenRef,
		Mode:             mode,
		AllowedUsernames: t.AllowedUsernames,
		AllowedChatIDs:   t.AllowedChatIDs,
		CommandsFile:     t.CommandsFile,
		Menu:             t.CommandsFile != "",
	}}
	data, err := yamlMarshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("config: render: %w", err)
	}
	return data, nil
}

// Save renders t and writes it to path atomically.
func Save(t Template, path string) error {
	data, err := Render(t)
	if err != nil {
		return err
	}
	if err := atomicWrite(path, data, configFilePerm); err != nil {
		return fmt.Errorf("config: save: %w", err)
	}
	slog.Info("config saved", "component", "config", "operation", "save", "path", path)
	return nil
}
