package vault

import (
	"errors"
	"fmt"
	"strings"
)

// RefPrefix marks a configuration value stored in the vault.
const RefPrefix = "vault:"

// ErrLocked is returned when a reference must be resolved but no vault
// was unlocked.
var ErrLocked = errors.New("vault: reference used without a vault")

// Getter is satisfied by *Vault.
type Getter interface {
	Get(key string) (string, error)
}

// RefKey reports the vault key a value refers to.
func RefKey(value string) (string, bool) {
	key, ok := strings.CutPrefix(strings.TrimSpace(value), RefPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Resolve returns value itself, or the secret it refers to.
func Resolve(value string, g Getter) (string, error) {
	key, ok := RefKey(value)
	if !ok {
		return value, nil
	}
	if g == nil {
		return "", fmt.Errorf("%w: %s", ErrLocked, key)
	}
	secret, err := g.Get(key)
	if err != nil {
		return "", fmt.Errorf("vault: resolve %s: %w", key, err)
	}
	return secret, nil
}
