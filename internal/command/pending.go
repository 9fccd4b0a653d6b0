package command

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PendingKey builds the registry key for a command awaiting a reply from
// username in chatID.
func PendingKey(pattern, username string, chatID int64) string {
	var b strings.Builder
	b.Grow(len(pattern) + len(username) + 22)
	b.WriteString(pattern)
	b.WriteByte('|')
	b.WriteString(username)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(chatID, 10))
	return b.String()
}

type pendingEntry struct {
	pattern string
	owner   uuid.UUID
}

// PendingReplies tracks at most one outstanding reply per key. Entries have
// no expiry: a user who never answers leaves the entry in place until the
// owning registration is removed.
type PendingReplies struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
}

func NewPendingReplies() *PendingReplies {
	return &PendingReplies{entries: make(map[string]pendingEntry)}
}

// Set records that owner's command pattern is waiting on key, replacing
// any earlier entry for the same key.
func (p *PendingReplies) Set(owner uuid.UUID, key, pattern string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries == nil {
		p.entries = make(map[string]pendingEntry)
	}
	p.entries[key] = pendingEntry{pattern: pattern, owner: owner}
}

// Take removes and returns the entry for key. Lookup and removal happen
// under one lock so a reply is consumed exactly once.
func (p *PendingReplies) Take(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return "", false
	}
	delete(p.entries, key)
	return e.pattern, true
}

// Peek returns the entry for key without consuming it.
func (p *PendingReplies) Peek(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	return e.pattern, ok
}

// RemoveOwner drops every entry written by owner and returns how many
// were removed.
func (p *PendingReplies) RemoveOwner(owner uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, e := range p.entries {
		if e.owner == owner {
			delete(p.entries, k)
			n++
		}
	}
	return n
}

func (p *PendingReplies) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
