package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edouard/switchboard/internal/config"
	"github.com/edouard/switchboard/internal/supervisor"
	"github.com/edouard/switchboard/internal/vault"
)

// Replaceable for testing error paths.
var (
	configSave = config.Save
	removeFile = os.Remove
)

func newInitCmd(v *viper.Viper, p *prompter) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file and a vault holding the bot token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.ErrOrStderr(), p, configPath(v), v.GetString("vault.path"), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config and vault without asking.")
	return cmd
}

// detectExisting lists the files init would overwrite.
func detectExisting(paths ...string) []string {
	var found []string
	for _, p := range paths {
		if _, err := statFile(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

// runInit implements the interactive init wizard.
func runInit(w io.Writer, p *prompter, cfgPath, vaultPath string, force bool) error {
	slog.Info("wizard started", "component", "init", "operation", "start")

	if existing := detectExisting(cfgPath, vaultPath); len(existing) > 0 && !force {
		slog.Warn("existing files detected", "component", "init", "operation", "overwrite_check", "files", strings.Join(existing, ", "))
		fmt.Fprintf(w, "Found: %s\n", strings.Join(existing, ", "))
		answer, err := p.line(w, "Overwrite? Stored secrets will be lost. (y/N): ", "n", false)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		if answer != "y" && answer != "Y" {
			slog.Info("overwrite declined", "component", "init", "operation", "overwrite_check")
			return errors.New("init: aborted")
		}
	}

	var t config.Template
	var err error
	if t.BotName, err = p.line(w, "Bot name (default main): ", "main", true); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	token, err := p.line(w, "Telegram bot token: ", "", true)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if t.Mode, err = p.line(w, "Mode: polling|webhook|send_only (default polling): ", "polling", true); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if _, err := supervisor.ParseMode(t.Mode); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if t.AllowedUsernames, err = p.line(w, "Allowed usernames, comma-separated (empty allows everyone): ", "", false); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if t.AllowedChatIDs, err = p.line(w, "Allowed chat IDs, comma-separated (optional): ", "", false); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if t.CommandsFile, err = p.line(w, "Commands file (optional): ", "", false); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	pass, err := p.passphrase(w, "Vault passphrase: ")
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Creating switchboard configuration...")

	vlt, err := vaultCreate(pass, vaultPath)
	if err != nil {
		return fmt.Errorf("init: create vault: %w", err)
	}
	key := t.BotName + "_token"
	if err := vlt.Set(key, token); err != nil {
		_ = removeFile(vaultPath)
		return fmt.Errorf("init: store %s: %w", key, err)
	}
	fmt.Fprintf(w, "  Vault created at %s\n", vaultPath)

	t.TokenRef = vault.RefPrefix + key
	t.VaultPath = vaultPath
	if err := configSave(t, cfgPath); err != nil {
		_ = removeFile(vaultPath)
		return fmt.Errorf("init: %w", err)
	}
	slog.Info("wizard finished", "component", "init", "operation", "finish", "config", cfgPath, "vault", vaultPath)
	fmt.Fprintf(w, "  Configuration saved to %s\n", cfgPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "switchboard is ready! Run 'switchboard run' to start.")
	return nil
}
