// Package command matches incoming text against configured command
// registrations and tracks conversations waiting for a user's answer.
package command

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Scope is the audience a registration is advertised to in the command menu.
type Scope string

const (
	ScopeDefault               Scope = "default"
	ScopeAllPrivateChats       Scope = "all_private_chats"
	ScopeAllGroupChats         Scope = "all_group_chats"
	ScopeAllChatAdministrators Scope = "all_chat_administrators"
)

// Valid reports whether s is one of the known scopes. The empty scope is
// accepted and treated as ScopeDefault.
func (s Scope) Valid() bool {
	switch s {
	case "", ScopeDefault, ScopeAllPrivateChats, ScopeAllGroupChats, ScopeAllChatAdministrators:
		return true
	}
	return false
}

// Normalized maps the empty scope to ScopeDefault.
func (s Scope) Normalized() Scope {
	if s == "" {
		return ScopeDefault
	}
	return s
}

// ErrEmptyPattern is returned when a registration has no pattern.
var ErrEmptyPattern = errors.New("command: empty pattern")

// Registration is one configured command handler.
type Registration struct {
	ID                  uuid.UUID `yaml:"-" mapstructure:"-"`
	Pattern             string    `yaml:"pattern" mapstructure:"pattern"`
	Description         string    `yaml:"description" mapstructure:"description"`
	Language            string    `yaml:"language" mapstructure:"language"`
	Scope               Scope     `yaml:"scope" mapstructure:"scope"`
	ExpectsResponse     bool      `yaml:"expects_response" mapstructure:"expects_response"`
	StrictGroupMatching bool      `yaml:"strict_group_matching" mapstructure:"strict_group_matching"`
	UseRegex            bool      `yaml:"use_regex" mapstructure:"use_regex"`
	StripMatchedPrefix  bool      `yaml:"strip_matched_prefix" mapstructure:"strip_matched_prefix"`

	re *regexp.Regexp
}

// Compile validates the registration and prepares its regular expression.
func (r *Registration) Compile() error {
	if r.Pattern == "" {
		return ErrEmptyPattern
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("command: %s: unknown scope %q", r.Pattern, r.Scope)
	}
	if !r.UseRegex {
		r.re = nil
		return nil
	}
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("command: compile %q: %w", r.Pattern, err)
	}
	r.re = re
	return nil
}

func (r *Registration) regexp() (*regexp.Regexp, error) {
	if r.re != nil {
		return r.re, nil
	}
	return regexp.Compile(r.Pattern)
}
