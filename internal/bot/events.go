package bot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edouard/switchboard/internal/command"
	"github.com/edouard/switchboard/internal/sink"
)

// CommandEvent is published for every DIRECT or REPLY decision.
type CommandEvent struct {
	Registration uuid.UUID `json:"registration"`
	Pattern      string    `json:"pattern"`
	Match        string    `json:"match"`
	Remainder    string    `json:"remainder"`
	Text         string    `json:"text"`
	ChatID       int64     `json:"chat_id"`
	UserID       int64     `json:"user_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	MessageID    int64     `json:"message_id,omitempty"`
	AwaitsReply  bool      `json:"awaits_reply,omitempty"`
}

// RejectionEvent is published when the allow-list refuses a sender.
type RejectionEvent struct {
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Text      string `json:"text"`
	MessageID int64  `json:"message_id,omitempty"`
}

func commandEvent(d command.Decision) CommandEvent {
	ev := CommandEvent{
		Registration: d.Registration.ID,
		Pattern:      d.Registration.Pattern,
		Match:        d.Kind.String(),
		Remainder:    d.Remainder,
		ChatID:       d.ChatID,
		UserID:       d.UserID,
		Username:     d.Username,
		AwaitsReply:  d.Kind == command.MatchDirect && d.Registration.ExpectsResponse,
	}
	if d.Message != nil {
		ev.Text = d.Message.Text
		ev.MessageID = d.Message.MessageID
	}
	return ev
}

// Command implements command.Handler.
func (i *Instance) Command(ctx context.Context, d command.Decision) {
	slog.Debug("command matched",
		"component", "bot",
		"operation", "command",
		"bot", i.name,
		"pattern", d.Registration.Pattern,
		"chat_id", d.ChatID,
	)
	i.publish(ctx, sink.CommandTopic(d.Registration.Pattern), commandEvent(d))
}

// Reply implements command.Handler.
func (i *Instance) Reply(ctx context.Context, d command.Decision) {
	slog.Debug("reply matched",
		"component", "bot",
		"operation", "reply",
		"bot", i.name,
		"pattern", d.Registration.Pattern,
		"chat_id", d.ChatID,
	)
	i.publish(ctx, sink.ReplyTopic(d.Registration.Pattern), commandEvent(d))
}

// Unauthorized implements command.Handler.
func (i *Instance) Unauthorized(ctx context.Context, r command.Rejection) {
	slog.Info("sender not allowed",
		"component", "bot",
		"operation", "unauthorized",
		"bot", i.name,
		"chat_id", r.ChatID,
		"username", r.Username,
	)
	ev := RejectionEvent{
		ChatID:   r.ChatID,
		UserID:   r.UserID,
		Username: r.Username,
		Text:     r.Text,
	}
	if r.Message != nil {
		ev.MessageID = r.Message.MessageID
	}
	i.publish(ctx, sink.TopicUnauthorized, ev)
}
