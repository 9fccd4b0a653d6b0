// Package update turns raw Telegram updates into one canonical record.
//
// Every function here is pure: no I/O, and the raw update is never
// modified. Normalized records share pointers into the raw update for
// structured content, so callers must not mutate one through the other.
package update

import (
	"time"

	"github.com/edouard/switchboard/internal/telegram"
)

// Normalized is the canonical shape of any update the router surfaces.
type Normalized struct {
	// ChatID is negative for groups and supergroups, positive for private
	// chats, and 0 when no chat could be derived.
	ChatID int64 `json:"chat_id,omitempty" cbor:"chat_id,omitempty"`
	// MessageID is 0 for kinds that carry no message (polls, inline queries).
	MessageID int64 `json:"message_id,omitempty" cbor:"message_id,omitempty"`
	Kind      Kind  `json:"type" cbor:"type"`
	// Content is a string (text or file id) or a structured sub-object.
	Content      any       `json:"content,omitempty" cbor:"content,omitempty"`
	Caption      string    `json:"caption,omitempty" cbor:"caption,omitempty"`
	Date         time.Time `json:"date" cbor:"date"`
	IsBlob       bool      `json:"blob,omitempty" cbor:"blob,omitempty"`
	MediaGroupID string    `json:"media_group_id,omitempty" cbor:"media_group_id,omitempty"`

	From        *telegram.User         `json:"from,omitempty" cbor:"from,omitempty"`
	Chat        *telegram.Chat         `json:"chat,omitempty" cbor:"chat,omitempty"`
	EditDate    time.Time              `json:"edit_date,omitzero" cbor:"edit_date,omitempty"`
	OldReaction []telegram.ReactionType `json:"old_reaction,omitempty" cbor:"old_reaction,omitempty"`
	NewReaction []telegram.ReactionType `json:"new_reaction,omitempty" cbor:"new_reaction,omitempty"`
	// Raw is the sub-object the record was built from.
	Raw any `json:"-" cbor:"-"`
}

// Normalize classifies a raw update by the top-level field that is set.
// It returns false for updates the router does not surface; that is not
// an error.
func Normalize(u *telegram.Update) (*Normalized, bool) {
	kind, ok := DetectKind(u)
	if !ok {
		return nil, false
	}
	return ClassifyByKind(kind, u)
}

// DetectKind returns the update-level kind of u.
func DetectKind(u *telegram.Update) (Kind, bool) {
	if u == nil {
		return "", false
	}
	switch {
	case u.Message != nil:
		return KindMessage, true
	case u.EditedMessage != nil:
		return KindEditedMessage, true
	case u.ChannelPost != nil:
		return KindChannelPost, true
	case u.EditedChannelPost != nil:
		return KindEditedChannelPost, true
	case u.BusinessConnection != nil:
		return KindBusinessConnection, true
	case u.BusinessMessage != nil:
		return KindBusinessMessage, true
	case u.EditedBusinessMessage != nil:
		return KindEditedBusinessMessage, true
	case u.DeletedBusinessMessages != nil:
		return KindDeletedBusinessMessages, true
	case u.MessageReaction != nil:
		return KindMessageReaction, true
	case u.MessageReactionCount != nil:
		return KindMessageReactionCount, true
	case u.InlineQuery != nil:
		return KindInlineQuery, true
	case u.ChosenInlineResult != nil:
		return KindChosenInlineResult, true
	case u.CallbackQuery != nil:
		return KindCallbackQuery, true
	case u.ShippingQuery != nil:
		return KindShippingQuery, true
	case u.PreCheckoutQuery != nil:
		return KindPreCheckoutQuery, true
	case u.PurchasedPaidMedia != nil:
		return KindPurchasedPaidMedia, true
	case u.Poll != nil:
		return KindPoll, true
	case u.PollAnswer != nil:
		return KindPollAnswer, true
	case u.MyChatMember != nil:
		return KindMyChatMember, true
	case u.ChatMember != nil:
		return KindChatMember, true
	case u.ChatJoinRequest != nil:
		return KindChatJoinRequest, true
	case u.ChatBoost != nil:
		return KindChatBoost, true
	case u.RemovedChatBoost != nil:
		return KindRemovedChatBoost, true
	}
	return "", false
}

// ClassifyByKind builds the record for an update dispatched by kind. For
// KindMessage it defers to InferMessage, so a message classifies the same
// way whichever entry point is used.
func ClassifyByKind(kind Kind, u *telegram.Update) (*Normalized, bool) {
	if u == nil {
		return nil, false
	}
	switch kind {
	case KindMessage:
		return InferMessage(u.Message)

	case KindEditedMessage:
		return editedMessage(u.EditedMessage)
	case KindChannelPost:
		return fromMessage(KindChannelPost, u.ChannelPost)
	case KindEditedChannelPost:
		return fromMessage(KindEditedChannelPost, u.EditedChannelPost)
	case KindBusinessMessage:
		return fromMessage(KindBusinessMessage, u.BusinessMessage)
	case KindEditedBusinessMessage:
		return fromMessage(KindEditedBusinessMessage, u.EditedBusinessMessage)

	case KindBusinessConnection:
		bc := u.BusinessConnection
		if bc == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  bc.UserChatID,
			Kind:    kind,
			Content: bc,
			Date:    unixTime(bc.Date),
			From:    userPtr(bc.User),
			Raw:     bc,
		}, true

	case KindDeletedBusinessMessages:
		d := u.DeletedBusinessMessages
		if d == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  d.Chat.ID,
			Kind:    kind,
			Content: d.MessageIDs,
			Chat:    chatPtr(d.Chat),
			Raw:     d,
		}, true

	case KindMessageReaction:
		r := u.MessageReaction
		if r == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:      r.Chat.ID,
			MessageID:   r.MessageID,
			Kind:        kind,
			Content:     r.NewReaction,
			Date:        unixTime(r.Date),
			From:        r.User,
			Chat:        chatPtr(r.Chat),
			OldReaction: r.OldReaction,
			NewReaction: r.NewReaction,
			Raw:         r,
		}, true

	case KindMessageReactionCount:
		r := u.MessageReactionCount
		if r == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:    r.Chat.ID,
			MessageID: r.MessageID,
			Kind:      kind,
			Content:   r.Reactions,
			Date:      unixTime(r.Date),
			Chat:      chatPtr(r.Chat),
			Raw:       r,
		}, true

	case KindInlineQuery:
		q := u.InlineQuery
		if q == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  q.From.ID,
			Kind:    kind,
			Content: q.Query,
			From:    userPtr(q.From),
			Raw:     q,
		}, true

	case KindChosenInlineResult:
		r := u.ChosenInlineResult
		if r == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  r.From.ID,
			Kind:    kind,
			Content: r.Query,
			From:    userPtr(r.From),
			Raw:     r,
		}, true

	case KindCallbackQuery:
		return callbackQuery(u.CallbackQuery)

	case KindShippingQuery:
		q := u.ShippingQuery
		if q == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  q.From.ID,
			Kind:    kind,
			Content: q.InvoicePayload,
			From:    userPtr(q.From),
			Raw:     q,
		}, true

	case KindPreCheckoutQuery:
		q := u.PreCheckoutQuery
		if q == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  q.From.ID,
			Kind:    kind,
			Content: q.InvoicePayload,
			From:    userPtr(q.From),
			Raw:     q,
		}, true

	case KindPurchasedPaidMedia:
		p := u.PurchasedPaidMedia
		if p == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  p.From.ID,
			Kind:    kind,
			Content: p.PaidMediaPayload,
			From:    userPtr(p.From),
			Raw:     p,
		}, true

	case KindPoll:
		if u.Poll == nil {
			return nil, false
		}
		return &Normalized{Kind: kind, Content: u.Poll, Raw: u.Poll}, true

	case KindPollAnswer:
		a := u.PollAnswer
		if a == nil {
			return nil, false
		}
		n := &Normalized{Kind: kind, Content: a, From: a.User, Chat: a.VoterChat, Raw: a}
		switch {
		case a.VoterChat != nil:
			n.ChatID = a.VoterChat.ID
		case a.User != nil:
			n.ChatID = a.User.ID
		}
		return n, true

	case KindMyChatMember, KindChatMember:
		m := u.MyChatMember
		if kind == KindChatMember {
			m = u.ChatMember
		}
		if m == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  m.Chat.ID,
			Kind:    kind,
			Content: m,
			Date:    unixTime(m.Date),
			From:    userPtr(m.From),
			Chat:    chatPtr(m.Chat),
			Raw:     m,
		}, true

	case KindChatJoinRequest:
		r := u.ChatJoinRequest
		if r == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  r.Chat.ID,
			Kind:    kind,
			Content: r,
			Date:    unixTime(r.Date),
			From:    userPtr(r.From),
			Chat:    chatPtr(r.Chat),
			Raw:     r,
		}, true

	case KindChatBoost:
		b := u.ChatBoost
		if b == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  b.Chat.ID,
			Kind:    kind,
			Content: b.Boost,
			Date:    unixTime(b.Boost.AddDate),
			From:    b.Boost.Source.User,
			Chat:    chatPtr(b.Chat),
			Raw:     b,
		}, true

	case KindRemovedChatBoost:
		b := u.RemovedChatBoost
		if b == nil {
			return nil, false
		}
		return &Normalized{
			ChatID:  b.Chat.ID,
			Kind:    kind,
			Content: b.BoostID,
			Date:    unixTime(b.RemoveDate),
			From:    b.Source.User,
			Chat:    chatPtr(b.Chat),
			Raw:     b,
		}, true
	}
	return nil, false
}

// InferMessage classifies a message by payload shape: the first populated
// field of the priority list wins.
func InferMessage(m *telegram.Message) (*Normalized, bool) {
	if m == nil {
		return nil, false
	}
	n := &Normalized{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Date:      unixTime(m.Date),
		From:      m.From,
		Chat:      chatPtr(m.Chat),
		Raw:       m,
	}
	blob := func(kind Kind, fileID string) (*Normalized, bool) {
		n.Kind = kind
		n.Content = fileID
		n.IsBlob = true
		n.Caption = m.Caption
		n.MediaGroupID = m.MediaGroupID
		return n, true
	}
	structured := func(kind Kind, content any) (*Normalized, bool) {
		n.Kind = kind
		n.Content = content
		return n, true
	}

	switch {
	case m.Text != "":
		return structured(KindMessage, m.Text)
	case len(m.Photo) > 0:
		return blob(KindPhoto, m.Photo[LargestPhoto(m.Photo)].FileID)
	case m.Audio != nil:
		return blob(KindAudio, m.Audio.FileID)
	case m.Sticker != nil:
		n.Kind = KindSticker
		n.Content = m.Sticker.FileID
		n.IsBlob = true
		return n, true
	case m.Dice != nil:
		return structured(KindDice, m.Dice)
	case m.Animation != nil:
		return blob(KindAnimation, m.Animation.FileID)
	case m.Video != nil:
		return blob(KindVideo, m.Video.FileID)
	case m.VideoNote != nil:
		n.Kind = KindVideoNote
		n.Content = m.VideoNote.FileID
		n.IsBlob = true
		n.MediaGroupID = m.MediaGroupID
		return n, true
	case m.Voice != nil:
		return blob(KindVoice, m.Voice.FileID)
	case m.Location != nil:
		return structured(KindLocation, m.Location)
	case m.Venue != nil:
		return structured(KindVenue, m.Venue)
	case m.Contact != nil:
		return structured(KindContact, m.Contact)
	case m.Document != nil:
		return blob(KindDocument, m.Document.FileID)
	case m.Poll != nil:
		return structured(KindPoll, m.Poll)
	case m.Invoice != nil:
		return structured(KindInvoice, m.Invoice)
	case m.SuccessfulPayment != nil:
		return structured(KindSuccessfulPayment, m.SuccessfulPayment)
	case len(m.NewChatMembers) > 0:
		return structured(KindNewChatMembers, m.NewChatMembers)
	case m.LeftChatMember != nil:
		return structured(KindLeftChatMember, m.LeftChatMember)
	case m.NewChatTitle != "":
		return structured(KindNewChatTitle, m.NewChatTitle)
	case len(m.NewChatPhoto) > 0:
		n.Kind = KindNewChatPhoto
		n.Content = m.NewChatPhoto[LargestPhoto(m.NewChatPhoto)].FileID
		n.IsBlob = true
		return n, true
	case m.DeleteChatPhoto:
		return structured(KindDeleteChatPhoto, true)
	case m.PinnedMessage != nil:
		return structured(KindPinnedMessage, m.PinnedMessage)
	case m.WebAppData != nil:
		return structured(KindWebAppData, m.WebAppData)
	}
	return nil, false
}

// LargestPhoto returns the index of the size with the greatest pixel area.
// Ties keep the earliest entry. It returns -1 for an empty slice.
func LargestPhoto(sizes []telegram.PhotoSize) int {
	best := -1
	var bestArea int64
	for i, s := range sizes {
		area := int64(s.Width) * int64(s.Height)
		if best < 0 || area > bestArea {
			best = i
			bestArea = area
		}
	}
	return best
}

// fromMessage classifies a message-carrying update (channel and business
// posts) by payload, then retags it with the update-level kind. Messages
// with no recognised payload are surfaced whole.
func fromMessage(kind Kind, m *telegram.Message) (*Normalized, bool) {
	if m == nil {
		return nil, false
	}
	n, ok := InferMessage(m)
	if !ok {
		n = &Normalized{
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Content:   m,
			Date:      unixTime(m.Date),
			From:      m.From,
			Chat:      chatPtr(m.Chat),
			Raw:       m,
		}
	}
	n.Kind = kind
	n.EditDate = unixTime(m.EditDate)
	return n, true
}

func editedMessage(m *telegram.Message) (*Normalized, bool) {
	if m == nil {
		return nil, false
	}
	n, _ := fromMessage(KindEditedMessage, m)
	switch {
	case m.Text != "":
		n.Kind = KindEditedMessageText
	case m.Caption != "":
		n.Kind = KindEditedMessageCaption
		n.Content = m.Caption
	}
	return n, true
}

func callbackQuery(q *telegram.CallbackQuery) (*Normalized, bool) {
	if q == nil {
		return nil, false
	}
	n := &Normalized{
		ChatID:  q.From.ID,
		Kind:    KindCallbackQuery,
		Content: q.Data,
		From:    userPtr(q.From),
		Raw:     q,
	}
	if q.Message != nil {
		n.ChatID = q.Message.Chat.ID
		n.MessageID = q.Message.MessageID
		n.Date = unixTime(q.Message.Date)
		n.Chat = chatPtr(q.Message.Chat)
	}
	return n, true
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// userPtr and chatPtr copy value fields so the record never aliases a
// struct embedded by value in the raw update.
func userPtr(u telegram.User) *telegram.User { return &u }

func chatPtr(c telegram.Chat) *telegram.Chat { return &c }
