package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Replaceable for testing error paths.
var (
	randRead              = func(b []byte) (int, error) { return rand.Read(b) }
	newGCMWithRandomNonce = func(block cipher.Block) (cipher.AEAD, error) { return cipher.NewGCMWithRandomNonce(block) }
)

const (
	// SaltSize is the number of random bytes used for the KDF salt.
	SaltSize = 16

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
)

// KDFParams are the Argon2id cost parameters. They are stored next to
// the salt so a vault stays readable after the defaults change.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory_kib"`
	Threads uint8  `json:"threads"`
}

// DefaultKDF follows the RFC 9106 second recommended option.
var DefaultKDF = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

func (p KDFParams) valid() bool {
	return p.Time > 0 && p.Memory >= 8*uint32(p.Threads) && p.Threads > 0
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt
// using Argon2id.
func DeriveKey(passphrase string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, KeySize)
}

// Encrypt seals plaintext with AES-256-GCM under a random nonce. The
// associated data binds the ciphertext to its entry name, so entries
// cannot be swapped on disk.
func Encrypt(key, plaintext, associated []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("vault: encrypt: %w", err)
	}
	return gcm.Seal(nil, nil, plaintext, associated), nil
}

// Decrypt opens ciphertext produced by Encrypt with the same associated data.
func Decrypt(key, ciphertext, associated []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	plaintext, err := gcm.Open(nil, nil, ciphertext, associated)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: open: %w", err)
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := newGCMWithRandomNonce(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := randRead(salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}
	return salt, nil
}
