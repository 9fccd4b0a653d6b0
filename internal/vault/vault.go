// Package vault stores bot tokens encrypted at rest. Configuration refers
// to them as "vault:<key>".
package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/edouard/switchboard/internal/platform"
)

// Sentinel errors.
var (
	ErrKeyNotFound     = errors.New("vault: key not found")
	ErrDecrypt         = errors.New("vault: decryption failed")
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")
	ErrVersion         = errors.New("vault: unsupported file version")
)

const (
	fileVersion   = 1
	vaultFilePerm = 0o600
)

// checkPlaintext is sealed under the derived key so a wrong passphrase is
// detected at unlock instead of at the first Get.
var checkPlaintext = []byte("switchboard-vault")

// Replaceable for testing error paths.
var (
	atomicWrite       = platform.AtomicWrite
	readFile          = os.ReadFile
	jsonMarshalIndent = func(v any, prefix, indent string) ([]byte, error) { return json.MarshalIndent(v, prefix, indent) }
)

type vaultFile struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	KDF     KDFParams         `json:"kdf"`
	Check   string            `json:"check"`
	Entries map[string]string `json:"entries"`
}

// Vault holds encrypted secrets in memory and persists every change.
// It is safe for concurrent use.
type Vault struct {
	mu      sync.RWMutex
	key     []byte
	path    string
	salt    []byte
	kdf     KDFParams
	check   []byte
	entries map[string][]byte
}

// Create writes a new empty vault at path, protected by passphrase.
func Create(passphrase, path string) (*Vault, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}
	kdf := DefaultKDF
	key := DeriveKey(passphrase, salt, kdf)
	check, err := Encrypt(key, checkPlaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}
	v := &Vault{
		key:     key,
		path:    path,
		salt:    salt,
		kdf:     kdf,
		check:   check,
		entries: make(map[string][]byte),
	}
	if err := v.save(); err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}
	slog.Info("vault created", "component", "vault", "operation", "create", "path", path)
	return v, nil
}

// Unlock opens the vault at path. A passphrase that does not match the
// one used at creation yields ErrWrongPassphrase.
func Unlock(passphrase, path string) (*Vault, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: unlock: %w", err)
	}
	v := &Vault{path: path, entries: make(map[string][]byte)}
	if err := v.decode(data); err != nil {
		return nil, fmt.Errorf("vault: unlock: %w", err)
	}
	v.key = DeriveKey(passphrase, v.salt, v.kdf)
	if _, err := Decrypt(v.key, v.check, nil); err != nil {
		return nil, ErrWrongPassphrase
	}
	slog.Info("vault unlocked", "component", "vault", "operation", "unlock", "path", path, "entries", len(v.entries))
	return v, nil
}

// Get decrypts and returns the value stored under key.
func (v *Vault) Get(key string) (string, error) {
	v.mu.RLock()
	ciphertext, ok := v.entries[key]
	v.mu.RUnlock()
	if !ok {
		return "", ErrKeyNotFound
	}
	plaintext, err := Decrypt(v.key, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// Set encrypts value under key and saves the vault.
func (v *Vault) Set(key, value string) error {
	ciphertext, err := Encrypt(v.key, []byte(value), []byte(key))
	if err != nil {
		return fmt.Errorf("vault: set: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	prev, existed := v.entries[key]
	v.entries[key] = ciphertext
	if err := v.save(); err != nil {
		if existed {
			v.entries[key] = prev
		} else {
			delete(v.entries, key)
		}
		return fmt.Errorf("vault: set: %w", err)
	}
	slog.Info("secret stored", "component", "vault", "operation", "set", "key", key)
	return nil
}

// Delete removes key and saves the vault.
func (v *Vault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	ciphertext, ok := v.entries[key]
	if !ok {
		return ErrKeyNotFound
	}
	delete(v.entries, key)
	if err := v.save(); err != nil {
		v.entries[key] = ciphertext
		return fmt.Errorf("vault: delete: %w", err)
	}
	slog.Info("secret deleted", "component", "vault", "operation", "delete", "key", key)
	return nil
}

// List returns the sorted key names. Nothing is decrypted.
func (v *Vault) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// save must be called with mu held (or before v is shared).
func (v *Vault) save() error {
	enc := base64.StdEncoding
	f := vaultFile{
		Version: fileVersion,
		Salt:    enc.EncodeToString(v.salt),
		KDF:     v.kdf,
		Check:   enc.EncodeToString(v.check),
		Entries: make(map[string]string, len(v.entries)),
	}
	for k, ct := range v.entries {
		f.Entries[k] = enc.EncodeToString(ct)
	}
	data, err := jsonMarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: save: marshal: %w", err)
	}
	return atomicWrite(v.path, append(data, '\n'), vaultFilePerm)
}

func (v *Vault) decode(data []byte) error {
	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if f.Version != fileVersion {
		return fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	if !f.KDF.valid() {
		return fmt.Errorf("invalid kdf parameters %+v", f.KDF)
	}
	enc := base64.StdEncoding
	salt, err := enc.DecodeString(f.Salt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}
	check, err := enc.DecodeString(f.Check)
	if err != nil {
		return fmt.Errorf("decode check: %w", err)
	}
	v.salt, v.kdf, v.check = salt, f.KDF, check
	for k, encoded := range f.Entries {
		ct, err := enc.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decode entry %q: %w", k, err)
		}
		v.entries[k] = ct
	}
	return nil
}
