// Package auth decides whether a sender may reach a bot's command handlers.
package auth

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// IsAuthorized reports whether a sender passes the allow-lists. Two empty
// lists mean an open bot. User ids and chat ids share the chatIDs list.
func IsAuthorized(usernames []string, chatIDs []int64, chatID, userID int64, username string) bool {
	if len(usernames) == 0 && len(chatIDs) == 0 {
		return true
	}
	if username != "" && slices.Contains(usernames, username) {
		return true
	}
	return slices.Contains(chatIDs, chatID) || slices.Contains(chatIDs, userID)
}

// Filter evaluates configured allow-list expressions at call time, so
// context-backed lists follow changes to the bot context.
type Filter struct {
	UsernamesExpr string
	ChatIDsExpr   string
	Resolver      Resolver
	Context       *Context
}

// NewFilter builds a filter using the default resolver chain.
func NewFilter(usernamesExpr, chatIDsExpr string, ctx *Context) *Filter {
	return &Filter{
		UsernamesExpr: usernamesExpr,
		ChatIDsExpr:   chatIDsExpr,
		Resolver:      DefaultResolver(),
		Context:       ctx,
	}
}

// Open reports whether neither allow-list is configured.
func (f *Filter) Open() bool {
	return strings.TrimSpace(f.UsernamesExpr) == "" && strings.TrimSpace(f.ChatIDsExpr) == ""
}

// Allow resolves both lists and applies IsAuthorized. A configured list
// that fails to resolve counts as empty but keeps the bot closed.
func (f *Filter) Allow(chatID, userID int64, username string) bool {
	if f.Open() {
		return true
	}
	usernames := f.resolve("usernames", f.UsernamesExpr)
	ids := parseIDs(f.resolve("chat_ids", f.ChatIDsExpr))
	if len(usernames) == 0 && len(ids) == 0 {
		return false
	}
	return IsAuthorized(usernames, ids, chatID, userID, username)
}

func (f *Filter) resolve(list, expr string) []string {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	r := f.Resolver
	if r == nil {
		r = DefaultResolver()
	}
	values, err := r.Resolve(expr, f.Context)
	if err != nil {
		slog.Warn("allow-list resolution failed, treating as empty",
			"component", "auth",
			"operation", "resolve",
			"list", list,
			"error", err,
		)
		return nil
	}
	return values
}

// parseIDs converts resolved identifiers to integers, skipping the rest.
func parseIDs(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			slog.Debug("skipping non-numeric allow-list entry",
				"component", "auth",
				"operation", "parse_ids",
				"value", v,
			)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
