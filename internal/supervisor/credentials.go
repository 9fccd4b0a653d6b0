package supervisor

import (
	"crypto/sha256"
	"sync"

	"github.com/google/uuid"
)

// Holder identifies the instance owning a credential.
type Holder struct {
	ID   uuid.UUID
	Name string
}

// Credentials enforces that each bot token is held by at most one live
// instance. Tokens are kept only as SHA-256 digests.
type Credentials struct {
	mu      sync.Mutex
	holders map[[sha256.Size]byte]Holder
}

// DefaultCredentials is the process-wide registry used when Options does
// not supply one.
var DefaultCredentials = NewCredentials()

func NewCredentials() *Credentials {
	return &Credentials{holders: make(map[[sha256.Size]byte]Holder)}
}

// Register claims token for h. Re-registering the same holder is a no-op.
func (c *Credentials) Register(token string, h Holder) error {
	key := sha256.Sum256([]byte(token))
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.holders[key]; ok && existing.ID != h.ID {
		return &CredentialConflictError{Bot: h.Name, Holder: existing.Name}
	}
	c.holders[key] = h
	return nil
}

// Unregister releases token if id still holds it.
func (c *Credentials) Unregister(token string, id uuid.UUID) bool {
	key := sha256.Sum256([]byte(token))
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.holders[key]; ok && existing.ID == id {
		delete(c.holders, key)
		return true
	}
	return false
}

// Holder returns the current owner of token.
func (c *Credentials) Holder(token string) (Holder, bool) {
	key := sha256.Sum256([]byte(token))
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.holders[key]
	return h, ok
}

func (c *Credentials) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holders)
}
