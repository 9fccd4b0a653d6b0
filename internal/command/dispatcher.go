package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/edouard/switchboard/internal/telegram"
)

// Authorizer decides whether a sender may reach command handlers.
type Authorizer interface {
	Allow(chatID, userID int64, username string) bool
}

// Handler receives dispatch decisions. Calls are made synchronously from
// Dispatch, in registration order.
type Handler interface {
	Command(ctx context.Context, d Decision)
	Reply(ctx context.Context, d Decision)
	Unauthorized(ctx context.Context, u Rejection)
}

// Decision is one registration's verdict on an update.
type Decision struct {
	Registration Registration
	Kind         MatchKind
	Remainder    string
	ChatID       int64
	UserID       int64
	Username     string
	Message      *telegram.Message
}

// Rejection describes an update refused by the authorization filter.
type Rejection struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
	Message  *telegram.Message
}

// Dispatcher fans a text update out to every registration of one bot. No
// registration short-circuits another.
type Dispatcher struct {
	mu          sync.RWMutex
	regs        []*Registration
	botUsername string

	pending *PendingReplies
	auth    Authorizer
	handler Handler
}

// NewDispatcher creates a dispatcher. auth and handler may be nil: a nil
// authorizer lets everyone through and a nil handler only collects
// decisions.
func NewDispatcher(auth Authorizer, handler Handler) *Dispatcher {
	return &Dispatcher{
		pending: NewPendingReplies(),
		auth:    auth,
		handler: handler,
	}
}

// SetBotUsername sets the name used for "@bot" direct mentions.
func (d *Dispatcher) SetBotUsername(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.botUsername = name
}

func (d *Dispatcher) BotUsername() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botUsername
}

// Pending exposes the reply registry shared by all registrations.
func (d *Dispatcher) Pending() *PendingReplies { return d.pending }

// Register compiles reg, assigns it an ID if it has none and adds it.
func (d *Dispatcher) Register(reg Registration) (uuid.UUID, error) {
	if err := reg.Compile(); err != nil {
		return uuid.Nil, err
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.regs {
		if r.ID == reg.ID {
			return uuid.Nil, fmt.Errorf("command: register %s: duplicate id %s", reg.Pattern, reg.ID)
		}
	}
	d.regs = append(d.regs, &reg)
	return reg.ID, nil
}

// Unregister removes a registration and every pending reply it owns.
func (d *Dispatcher) Unregister(id uuid.UUID) bool {
	d.mu.Lock()
	idx := -1
	for i, r := range d.regs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return false
	}
	d.regs = append(d.regs[:idx:idx], d.regs[idx+1:]...)
	d.mu.Unlock()

	removed := d.pending.RemoveOwner(id)
	slog.Debug("command unregistered",
		"component", "command",
		"operation", "unregister",
		"id", id,
		"pending_removed", removed,
	)
	return true
}

// Replace swaps the whole registration set. Registrations whose pattern is
// already present keep their ID, so their pending replies survive; the
// pending replies of dropped registrations are cleared. Nothing changes
// if any new registration fails to compile.
func (d *Dispatcher) Replace(regs []Registration) error {
	next := make([]*Registration, 0, len(regs))
	for i := range regs {
		r := regs[i]
		if err := r.Compile(); err != nil {
			return fmt.Errorf("command: replace: %w", err)
		}
		next = append(next, &r)
	}

	d.mu.Lock()
	byPattern := make(map[string]uuid.UUID, len(d.regs))
	for _, r := range d.regs {
		if _, seen := byPattern[r.Pattern]; !seen {
			byPattern[r.Pattern] = r.ID
		}
	}
	kept := make(map[uuid.UUID]bool, len(next))
	for _, r := range next {
		if id, ok := byPattern[r.Pattern]; ok && !kept[id] {
			r.ID = id
		} else if r.ID == uuid.Nil || kept[r.ID] {
			r.ID = uuid.New()
		}
		kept[r.ID] = true
	}
	var dropped []uuid.UUID
	for _, r := range d.regs {
		if !kept[r.ID] {
			dropped = append(dropped, r.ID)
		}
	}
	d.regs = next
	d.mu.Unlock()

	for _, id := range dropped {
		d.pending.RemoveOwner(id)
	}
	slog.Info("command registrations replaced",
		"component", "command",
		"operation", "replace",
		"count", len(next),
		"dropped", len(dropped),
	)
	return nil
}

// Registrations returns a snapshot of the current registrations.
func (d *Dispatcher) Registrations() []Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Registration, len(d.regs))
	for i, r := range d.regs {
		out[i] = *r
	}
	return out
}

// Dispatch runs every registration against a message update and reports
// the non-NONE decisions. Updates without message text are ignored.
// Unauthorized senders produce a single Rejection and no decisions.
func (d *Dispatcher) Dispatch(ctx context.Context, u *telegram.Update) []Decision {
	if u == nil || u.Message == nil || u.Message.Text == "" {
		return nil
	}
	m := u.Message
	var (
		userID   int64
		username string
	)
	if m.From != nil {
		userID = m.From.ID
		username = m.From.Username
	}
	chatID := m.Chat.ID

	if d.auth != nil && !d.auth.Allow(chatID, userID, username) {
		slog.Info("unauthorized sender",
			"component", "command",
			"operation", "dispatch",
			"chat_id", chatID,
			"user_id", userID,
			"username", username,
		)
		if d.handler != nil {
			d.handler.Unauthorized(ctx, Rejection{
				ChatID:   chatID,
				UserID:   userID,
				Username: username,
				Text:     m.Text,
				Message:  m,
			})
		}
		return nil
	}

	d.mu.RLock()
	regs := make([]*Registration, len(d.regs))
	copy(regs, d.regs)
	bot := d.botUsername
	d.mu.RUnlock()

	var out []Decision
	for _, reg := range regs {
		res := Match(reg, bot, m.Text, chatID, username, d.pending)
		if res.Kind == MatchNone {
			continue
		}
		dec := Decision{
			Registration: *reg,
			Kind:         res.Kind,
			Remainder:    res.Remainder,
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			Message:      m,
		}
		out = append(out, dec)
		if d.handler == nil {
			continue
		}
		if res.Kind == MatchReply {
			d.handler.Reply(ctx, dec)
		} else {
			d.handler.Command(ctx, dec)
		}
	}
	return out
}
