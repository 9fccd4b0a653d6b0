package command

import (
	"testing"

	"github.com/google/uuid"
)

const botName = "mybot"

func TestMatch_Literal(t *testing.T) {
	tests := []struct {
		name     string
		reg      Registration
		text     string
		chatID   int64
		wantKind MatchKind
		wantRest string
	}{
		{
			name:     "direct mention bypasses strict mode",
			reg:      Registration{Pattern: "/start", StrictGroupMatching: true},
			text:     "/start@mybot",
			chatID:   -100,
			wantKind: MatchDirect,
			wantRest: "",
		},
		{
			name:     "strict group suppresses bare command",
			reg:      Registration{Pattern: "/start", StrictGroupMatching: true},
			text:     "/start",
			chatID:   -100,
			wantKind: MatchNone,
		},
		{
			name:     "relaxed group accepts bare command",
			reg:      Registration{Pattern: "/start"},
			text:     "/start",
			chatID:   -100,
			wantKind: MatchDirect,
		},
		{
			name:     "private chat ignores strict mode",
			reg:      Registration{Pattern: "/start", StrictGroupMatching: true},
			text:     "/start now",
			chatID:   42,
			wantKind: MatchDirect,
			wantRest: " now",
		},
		{
			name:     "remainder keeps surrounding whitespace",
			reg:      Registration{Pattern: "/start"},
			text:     "/start  a b",
			chatID:   42,
			wantKind: MatchDirect,
			wantRest: "  a b",
		},
		{
			name:     "direct mention strips suffixed pattern",
			reg:      Registration{Pattern: "/start"},
			text:     "/start@mybot go",
			chatID:   42,
			wantKind: MatchDirect,
			wantRest: " go",
		},
		{
			name:     "mention of another bot",
			reg:      Registration{Pattern: "/start"},
			text:     "/start@otherbot",
			chatID:   42,
			wantKind: MatchNone,
		},
		{
			name:     "prefix is not a match",
			reg:      Registration{Pattern: "/start"},
			text:     "/starter",
			chatID:   42,
			wantKind: MatchNone,
		},
		{
			name:     "command must be first token",
			reg:      Registration{Pattern: "/start"},
			text:     "please /start",
			chatID:   42,
			wantKind: MatchNone,
		},
		{
			name:     "empty text",
			reg:      Registration{Pattern: "/start"},
			text:     "",
			chatID:   42,
			wantKind: MatchNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tt.reg
			got := Match(&reg, botName, tt.text, tt.chatID, "alice", NewPendingReplies())
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Kind != MatchNone && got.Remainder != tt.wantRest {
				t.Errorf("Remainder = %q, want %q", got.Remainder, tt.wantRest)
			}
		})
	}
}

func TestMatch_ReplyRoundTrip(t *testing.T) {
	reg := Registration{ID: uuid.New(), Pattern: "/ask", ExpectsResponse: true}
	pending := NewPendingReplies()

	got := Match(&reg, botName, "/ask", 42, "alice", pending)
	if got.Kind != MatchDirect {
		t.Fatalf("first Kind = %v, want direct", got.Kind)
	}
	key := PendingKey("/ask", "alice", 42)
	if p, ok := pending.Peek(key); !ok || p != "/ask" {
		t.Fatalf("pending[%q] = %q, %v", key, p, ok)
	}

	got = Match(&reg, botName, "42", 42, "alice", pending)
	if got.Kind != MatchReply {
		t.Fatalf("second Kind = %v, want reply", got.Kind)
	}
	if got.Remainder != "42" {
		t.Errorf("Remainder = %q, want full text", got.Remainder)
	}
	if _, ok := pending.Peek(key); ok {
		t.Error("pending entry not consumed")
	}

	got = Match(&reg, botName, "thanks", 42, "alice", pending)
	if got.Kind != MatchNone {
		t.Errorf("third Kind = %v, want none", got.Kind)
	}
}

func TestMatch_ReplyScopedToUserAndChat(t *testing.T) {
	reg := Registration{ID: uuid.New(), Pattern: "/ask", ExpectsResponse: true}
	pending := NewPendingReplies()
	Match(&reg, botName, "/ask", -7, "alice", pending)

	if got := Match(&reg, botName, "yes", -7, "bob", pending); got.Kind != MatchNone {
		t.Errorf("other user Kind = %v, want none", got.Kind)
	}
	if got := Match(&reg, botName, "yes", 99, "alice", pending); got.Kind != MatchNone {
		t.Errorf("other chat Kind = %v, want none", got.Kind)
	}
	if got := Match(&reg, botName, "/help", -7, "alice", pending); got.Kind != MatchNone {
		t.Errorf("command syntax Kind = %v, want none", got.Kind)
	}
	if pending.Len() != 1 {
		t.Fatalf("pending len = %d, want 1", pending.Len())
	}
	if got := Match(&reg, botName, "yes", -7, "alice", pending); got.Kind != MatchReply {
		t.Errorf("owner Kind = %v, want reply", got.Kind)
	}
}

func TestMatch_NoPendingWithoutExpectsResponse(t *testing.T) {
	reg := Registration{ID: uuid.New(), Pattern: "/ping"}
	pending := NewPendingReplies()
	if got := Match(&reg, botName, "/ping", 1, "alice", pending); got.Kind != MatchDirect {
		t.Fatalf("Kind = %v", got.Kind)
	}
	if pending.Len() != 0 {
		t.Errorf("pending len = %d, want 0", pending.Len())
	}
}

func TestMatch_Regex(t *testing.T) {
	tests := []struct {
		name     string
		reg      Registration
		text     string
		chatID   int64
		wantKind MatchKind
		wantRest string
	}{
		{
			name:     "regex ignores strict group matching",
			reg:      Registration{Pattern: `^/echo`, UseRegex: true, StrictGroupMatching: true},
			text:     "/echo hi",
			chatID:   -5,
			wantKind: MatchDirect,
			wantRest: "/echo hi",
		},
		{
			name:     "strip matched prefix",
			reg:      Registration{Pattern: `^/echo`, UseRegex: true, StripMatchedPrefix: true},
			text:     "/echo hi",
			chatID:   5,
			wantKind: MatchDirect,
			wantRest: " hi",
		},
		{
			name:     "direct mention with stripped prefix",
			reg:      Registration{Pattern: `^/echo`, UseRegex: true, StripMatchedPrefix: true},
			text:     "/echo@mybot hi",
			chatID:   -5,
			wantKind: MatchDirect,
			wantRest: " hi",
		},
		{
			name:     "matched text already carries the bot suffix",
			reg:      Registration{Pattern: `^/echo@mybot`, UseRegex: true, StripMatchedPrefix: true},
			text:     "/echo@mybot there",
			chatID:   -5,
			wantKind: MatchDirect,
			wantRest: " there",
		},
		{
			name:     "only first token is tested",
			reg:      Registration{Pattern: `/echo`, UseRegex: true},
			text:     "hi /echo",
			chatID:   5,
			wantKind: MatchNone,
		},
		{
			name:     "non command token",
			reg:      Registration{Pattern: `^\d+$`, UseRegex: true, StripMatchedPrefix: true},
			text:     "1234",
			chatID:   5,
			wantKind: MatchDirect,
			wantRest: "",
		},
		{
			name:     "invalid expression never matches",
			reg:      Registration{Pattern: `(`, UseRegex: true},
			text:     "(",
			chatID:   5,
			wantKind: MatchNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tt.reg
			got := Match(&reg, botName, tt.text, tt.chatID, "alice", NewPendingReplies())
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Kind != MatchNone && got.Remainder != tt.wantRest {
				t.Errorf("Remainder = %q, want %q", got.Remainder, tt.wantRest)
			}
		})
	}
}

func TestMatch_PendingKeyUsesEffectivePattern(t *testing.T) {
	tests := []struct {
		name      string
		reg       Registration
		text      string
		wantRest  string
		wantKey   string
		wantReply bool
	}{
		{
			name:      "literal",
			reg:       Registration{Pattern: "/ask", ExpectsResponse: true},
			text:      "/ask now",
			wantRest:  " now",
			wantKey:   "/ask",
			wantReply: true,
		},
		{
			name:      "regex keeps configured pattern",
			reg:       Registration{Pattern: `^/ask`, UseRegex: true, ExpectsResponse: true},
			text:      "/ask now",
			wantRest:  "/ask now",
			wantKey:   `^/ask`,
			wantReply: true,
		},
		{
			name:     "regex stripped to matched prefix",
			reg:      Registration{Pattern: `^/ask`, UseRegex: true, StripMatchedPrefix: true, ExpectsResponse: true},
			text:     "/ask now",
			wantRest: " now",
			wantKey:  "/ask",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tt.reg
			reg.ID = uuid.New()
			if err := reg.Compile(); err != nil {
				t.Fatalf("Compile: %v", err)
			}
			pending := NewPendingReplies()

			got := Match(&reg, botName, tt.text, 42, "alice", pending)
			if got.Kind != MatchDirect || got.Remainder != tt.wantRest {
				t.Fatalf("Match = %+v, want direct %q", got, tt.wantRest)
			}
			if pending.Len() != 1 {
				t.Fatalf("pending entries = %d, want 1", pending.Len())
			}
			if _, ok := pending.Peek(PendingKey(tt.wantKey, "alice", 42)); !ok {
				t.Fatalf("no pending entry under %q", tt.wantKey)
			}

			reply := Match(&reg, botName, "yes", 42, "alice", pending)
			if (reply.Kind == MatchReply) != tt.wantReply {
				t.Errorf("reply Kind = %v, want reply=%v", reply.Kind, tt.wantReply)
			}
		})
	}
}

func TestMatchKind_String(t *testing.T) {
	if MatchDirect.String() != "direct" || MatchReply.String() != "reply" || MatchNone.String() != "none" {
		t.Error("unexpected MatchKind strings")
	}
}
