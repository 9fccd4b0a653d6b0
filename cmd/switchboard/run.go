package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edouard/switchboard/internal/bot"
	"github.com/edouard/switchboard/internal/config"
	"github.com/edouard/switchboard/internal/sink"
	"github.com/edouard/switchboard/internal/supervisor"
	"github.com/edouard/switchboard/internal/vault"
)

// Replaceable for testing.
var (
	configLoad = config.Load
	buildSink  = sink.Build
	// newBotAPI nil means the real Bot API client.
	newBotAPI     func(token string) bot.API
	signalContext = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	}
)

func newRunCmd(v *viper.Viper, p *prompter) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start every configured bot and route updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRouter(cmd, v, p)
		},
	}
}

func runRouter(cmd *cobra.Command, v *viper.Viper, p *prompter) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := configLoad(v, configPath(v))
	if err != nil {
		slog.Error("failed to load config", "component", "cmd", "operation", "run", "error", err)
		return err
	}
	logger, err := config.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// A vault is only unlocked when some token refers to it.
	var secrets vault.Getter
	if needsVault(cfg) {
		pass, err := p.passphrase(stderr, "Vault passphrase: ")
		if err != nil {
			return err
		}
		vlt, err := vaultUnlock(pass, cfg.Vault.Path)
		if err != nil {
			slog.Error("failed to open vault", "component", "cmd", "operation", "run", "path", cfg.Vault.Path, "error", err)
			return vaultUserError(err)
		}
		secrets = vlt
	}
	resolve := func(value string) (string, error) { return vault.Resolve(value, secrets) }

	out, err := buildSink(cfg.Sink, logger)
	if err != nil {
		slog.Error("failed to build sink", "component", "cmd", "operation", "run", "error", err)
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Warn("sink close failed", "component", "cmd", "operation", "run", "error", err)
		}
	}()

	router, err := bot.NewRouter(cfg, resolve, out, supervisor.DefaultCredentials, newBotAPI)
	if err != nil {
		slog.Error("failed to configure bots", "component", "cmd", "operation", "run", "error", err)
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	slog.Info("switchboard started", "component", "cmd", "operation", "run", "bots", len(cfg.Bots))
	fmt.Fprintln(stderr, "Switchboard started. Press Ctrl+C to stop.")
	if err := router.Run(ctx); err != nil {
		slog.Error("router exited with error", "component", "cmd", "operation", "run", "error", err)
		return err
	}
	slog.Info("switchboard stopped", "component", "cmd", "operation", "run")
	fmt.Fprintln(stderr, "Switchboard stopped.")
	return nil
}

func needsVault(cfg *config.Config) bool {
	for _, b := range cfg.Bots {
		if _, ok := vault.RefKey(b.Token); ok {
			return true
		}
	}
	return false
}
