package command

import (
	"log/slog"
	"strings"
)

// MatchKind classifies how an update relates to a registration.
type MatchKind int

const (
	// MatchNone leaves the update to other registrations.
	MatchNone MatchKind = iota
	// MatchDirect is an invocation of the command itself.
	MatchDirect
	// MatchReply answers an earlier invocation that expects a response.
	MatchReply
)

func (k MatchKind) String() string {
	switch k {
	case MatchDirect:
		return "direct"
	case MatchReply:
		return "reply"
	default:
		return "none"
	}
}

// Result is the outcome of Match.
type Result struct {
	Kind      MatchKind
	Remainder string
}

// Match decides whether text from username in chatID invokes reg, answers a
// pending question of reg, or neither. It mutates pending only when a
// dispatch records a new wait or a reply consumes one.
//
// The dispatch condition keeps every clause of the original rule even where
// they overlap: regex handlers dispatch on any match and ignore
// StrictGroupMatching.
func Match(reg *Registration, botUsername, text string, chatID int64, username string, pending *PendingReplies) Result {
	var token0 string
	if fields := strings.Fields(text); len(fields) > 0 {
		token0 = fields[0]
	}
	isCommandSyntax := strings.HasPrefix(token0, "/")
	isGroup := chatID < 0
	botSuffix := "@" + botUsername

	var (
		isRegexMatch     bool
		isChatCommand    bool
		isDirect         bool
		effectivePattern = reg.Pattern
		suffixedPattern  string
	)

	if reg.UseRegex {
		re, err := reg.regexp()
		if err != nil {
			slog.Warn("invalid command pattern",
				"component", "command",
				"operation", "match",
				"pattern", reg.Pattern,
				"error", err,
			)
			return Result{Kind: MatchNone}
		}
		if loc := re.FindStringIndex(token0); loc != nil {
			isRegexMatch = true
			if reg.StripMatchedPrefix {
				effectivePattern = token0[loc[0]:loc[1]]
			}
			isDirect = strings.HasSuffix(token0, botSuffix)
			suffixedPattern = effectivePattern
			if !strings.HasSuffix(effectivePattern, botSuffix) {
				suffixedPattern = effectivePattern + botSuffix
			}
		}
	} else {
		isChatCommand = token0 == reg.Pattern
		suffixedPattern = reg.Pattern + botSuffix
		isDirect = token0 == suffixedPattern
	}

	dispatch := isDirect ||
		(isChatCommand && !isGroup) ||
		(isChatCommand && isGroup && !reg.StrictGroupMatching) ||
		(reg.UseRegex && isRegexMatch)

	if dispatch {
		target := effectivePattern
		if isDirect {
			target = suffixedPattern
		}
		if reg.ExpectsResponse && pending != nil {
			pending.Set(reg.ID, PendingKey(effectivePattern, username, chatID), effectivePattern)
		}
		return Result{Kind: MatchDirect, Remainder: strings.Replace(text, target, "", 1)}
	}

	// Replies are looked up under the configured pattern. A regex
	// registration that strips its matched prefix keys its entry by the
	// prefix instead, so only a later message on that key can consume it.
	if !isCommandSyntax && reg.ExpectsResponse && pending != nil {
		if _, ok := pending.Take(PendingKey(reg.Pattern, username, chatID)); ok {
			return Result{Kind: MatchReply, Remainder: text}
		}
	}
	return Result{Kind: MatchNone}
}
