package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edouard/switchboard/internal/vault"
)

// Replaceable for testing error paths.
var (
	vaultCreate = vault.Create
	vaultUnlock = vault.Unlock
)

func newVaultCmd(v *viper.Viper, p *prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the encrypted token vault",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret, creating the vault if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := vaultPath(v)
			if err != nil {
				return err
			}
			pass, err := p.passphrase(cmd.ErrOrStderr(), "Passphrase: ")
			if err != nil {
				return err
			}
			value, err := p.line(cmd.ErrOrStderr(), "Value: ", "", true)
			if err != nil {
				return fmt.Errorf("value: %w", err)
			}
			vlt, err := createOrUnlock(pass, path)
			if err != nil {
				return vaultUserError(err)
			}
			if err := vlt.Set(args[0], value); err != nil {
				return err
			}
			slog.Info("secret stored", "component", "vault-cli", "operation", "set", "key", args[0])
			fmt.Fprintf(cmd.ErrOrStderr(), "Secret stored: %s (reference it as %s%s)\n", args[0], vault.RefPrefix, args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vlt, err := unlockFromFlags(cmd, v, p)
			if err != nil {
				return err
			}
			value, err := vlt.Get(args[0])
			if err != nil {
				return vaultUserError(err)
			}
			slog.Info("secret retrieved", "component", "vault-cli", "operation", "get", "key", args[0])
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vlt, err := unlockFromFlags(cmd, v, p)
			if err != nil {
				return err
			}
			if err := vlt.Delete(args[0]); err != nil {
				return vaultUserError(err)
			}
			slog.Info("secret deleted", "component", "vault-cli", "operation", "delete", "key", args[0])
			fmt.Fprintf(cmd.ErrOrStderr(), "Secret deleted: %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List secret keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vlt, err := unlockFromFlags(cmd, v, p)
			if err != nil {
				return err
			}
			keys := vlt.List()
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			slog.Info("vault listed", "component", "vault-cli", "operation", "list", "count", len(keys))
			return nil
		},
	})
	return cmd
}

// vaultPath resolves the vault location: flag, env, config file, default.
func vaultPath(v *viper.Viper) (string, error) {
	if err := readConfigFile(v); err != nil {
		return "", err
	}
	return v.GetString("vault.path"), nil
}

func unlockFromFlags(cmd *cobra.Command, v *viper.Viper, p *prompter) (*vault.Vault, error) {
	path, err := vaultPath(v)
	if err != nil {
		return nil, err
	}
	pass, err := p.passphrase(cmd.ErrOrStderr(), "Passphrase: ")
	if err != nil {
		return nil, err
	}
	vlt, err := vaultUnlock(pass, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("vault not found at %s (run 'switchboard init' or 'switchboard vault set' first)", path)
		}
		return nil, vaultUserError(err)
	}
	return vlt, nil
}

// createOrUnlock opens the vault at path, creating it when absent.
func createOrUnlock(passphrase, path string) (*vault.Vault, error) {
	if _, err := statFile(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("vault: %w", err)
		}
		return vaultCreate(passphrase, path)
	}
	return vaultUnlock(passphrase, path)
}

// vaultUserError rewrites vault errors for the terminal.
func vaultUserError(err error) error {
	if errors.Is(err, vault.ErrWrongPassphrase) || errors.Is(err, vault.ErrDecrypt) {
		return errors.New("wrong passphrase or corrupted vault")
	}
	return err
}
