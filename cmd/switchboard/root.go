package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/edouard/switchboard/internal/config"
)

const defaultConfigPath = "switchboard.yaml"

// Replaceable for testing.
var (
	loadDotEnv = func() error { return godotenv.Load() }
	statFile   = os.Stat
)

func newRootCmd(stdin io.Reader) *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:           "switchboard",
		Short:         "Route Telegram bot updates to message brokers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is the normal case.
			if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return setupLogger(v, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file path (default "+defaultConfigPath+").")
	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error.")
	cmd.PersistentFlags().String("log-format", "", "Logging format: text|json.")
	cmd.PersistentFlags().String("vault", "", "Vault file path (default from config, then vault.enc).")
	bindFlags(v, cmd.PersistentFlags(), map[string]string{
		"config":     "config",
		"log-level":  "logging.level",
		"log-format": "logging.format",
		"vault":      "vault.path",
	})

	p := newPrompter(stdin)
	cmd.AddCommand(newRunCmd(v, p))
	cmd.AddCommand(newInitCmd(v, p))
	cmd.AddCommand(newVaultCmd(v, p))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// bindFlags binds each named flag to its config key, so a flag given on
// the command line overrides env and file values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil {
			panic("switchboard: unknown flag " + name)
		}
		_ = v.BindPFlag(key, f)
	}
}

// setupLogger installs the default slog logger from the flag and env
// settings. run replaces it once the config file is loaded.
func setupLogger(v *viper.Viper, w io.Writer) error {
	logger, err := config.NewLogger(config.Logging{
		Level:     v.GetString("logging.level"),
		Format:    v.GetString("logging.format"),
		AddSource: v.GetBool("logging.add_source"),
	}, w)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func configPath(v *viper.Viper) string {
	if p := strings.TrimSpace(v.GetString("config")); p != "" {
		return p
	}
	return defaultConfigPath
}

// readConfigFile merges the config file, when present, into v. Commands
// that manage the vault only need a few keys from it, so a missing
// default file is not an error.
func readConfigFile(v *viper.Viper) error {
	path := configPath(v)
	if _, err := statFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(v.GetString("config")) == "" {
			return nil
		}
		return fmt.Errorf("config: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
