package command

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/edouard/switchboard/internal/telegram"
)

// Menu is the command list advertised for one (scope, language) pair.
type Menu struct {
	Scope    Scope
	Language string
	Commands []telegram.BotCommand
}

var menuCommand = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// BuildMenus groups advertisable registrations by scope and language.
// Regex registrations and patterns Telegram would reject are skipped.
// Output is sorted by scope then language; commands keep their order.
func BuildMenus(regs []Registration) []Menu {
	type key struct {
		scope Scope
		lang  string
	}
	groups := make(map[key]*Menu)
	var keys []key
	for _, r := range regs {
		if r.UseRegex || r.Description == "" {
			continue
		}
		name, ok := strings.CutPrefix(r.Pattern, "/")
		if !ok || !menuCommand.MatchString(name) {
			continue
		}
		k := key{scope: r.Scope.Normalized(), lang: r.Language}
		m, ok := groups[k]
		if !ok {
			m = &Menu{Scope: k.scope, Language: k.lang}
			groups[k] = m
			keys = append(keys, k)
		}
		if slices.ContainsFunc(m.Commands, func(c telegram.BotCommand) bool { return c.Command == name }) {
			continue
		}
		m.Commands = append(m.Commands, telegram.BotCommand{Command: name, Description: r.Description})
	}
	slices.SortFunc(keys, func(a, b key) int {
		if c := cmp.Compare(a.scope, b.scope); c != 0 {
			return c
		}
		return cmp.Compare(a.lang, b.lang)
	})
	out := make([]Menu, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out
}
