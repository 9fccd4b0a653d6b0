package update

// Kind tags a normalized update. Message-carried kinds come from payload
// inference; the others from the top-level Update field that was set.
type Kind string

// Message payload kinds, in inference priority order.
const (
	KindMessage           Kind = "message"
	KindPhoto             Kind = "photo"
	KindAudio             Kind = "audio"
	KindSticker           Kind = "sticker"
	KindDice              Kind = "dice"
	KindAnimation         Kind = "animation"
	KindVideo             Kind = "video"
	KindVideoNote         Kind = "video_note"
	KindVoice             Kind = "voice"
	KindLocation          Kind = "location"
	KindVenue             Kind = "venue"
	KindContact           Kind = "contact"
	KindDocument          Kind = "document"
	KindPoll              Kind = "poll"
	KindInvoice           Kind = "invoice"
	KindSuccessfulPayment Kind = "successful_payment"
	KindNewChatMembers    Kind = "new_chat_members"
	KindLeftChatMember    Kind = "left_chat_member"
	KindNewChatTitle      Kind = "new_chat_title"
	KindNewChatPhoto      Kind = "new_chat_photo"
	KindDeleteChatPhoto   Kind = "delete_chat_photo"
	KindPinnedMessage     Kind = "pinned_message"
	KindWebAppData        Kind = "web_app_data"
)

// Update-level kinds.
const (
	KindEditedMessage           Kind = "edited_message"
	KindEditedMessageText       Kind = "edited_message_text"
	KindEditedMessageCaption    Kind = "edited_message_caption"
	KindChannelPost             Kind = "channel_post"
	KindEditedChannelPost       Kind = "edited_channel_post"
	KindBusinessConnection      Kind = "business_connection"
	KindBusinessMessage         Kind = "business_message"
	KindEditedBusinessMessage   Kind = "edited_business_message"
	KindDeletedBusinessMessages Kind = "deleted_business_messages"
	KindMessageReaction         Kind = "message_reaction"
	KindMessageReactionCount    Kind = "message_reaction_count"
	KindInlineQuery             Kind = "inline_query"
	KindChosenInlineResult      Kind = "chosen_inline_result"
	KindCallbackQuery           Kind = "callback_query"
	KindShippingQuery           Kind = "shipping_query"
	KindPreCheckoutQuery        Kind = "pre_checkout_query"
	KindPurchasedPaidMedia      Kind = "purchased_paid_media"
	KindPollAnswer              Kind = "poll_answer"
	KindMyChatMember            Kind = "my_chat_member"
	KindChatMember              Kind = "chat_member"
	KindChatJoinRequest         Kind = "chat_join_request"
	KindChatBoost               Kind = "chat_boost"
	KindRemovedChatBoost        Kind = "removed_chat_boost"
)

// UpdateKinds lists the update-level kinds in Bot API field order. The poll
// kind is shared with the message payload table: a standalone poll update
// is classified as KindPoll.
var UpdateKinds = []Kind{
	KindMessage,
	KindEditedMessage,
	KindChannelPost,
	KindEditedChannelPost,
	KindBusinessConnection,
	KindBusinessMessage,
	KindEditedBusinessMessage,
	KindDeletedBusinessMessages,
	KindMessageReaction,
	KindMessageReactionCount,
	KindInlineQuery,
	KindChosenInlineResult,
	KindCallbackQuery,
	KindShippingQuery,
	KindPreCheckoutQuery,
	KindPurchasedPaidMedia,
	KindPoll,
	KindPollAnswer,
	KindMyChatMember,
	KindChatMember,
	KindChatJoinRequest,
	KindChatBoost,
	KindRemovedChatBoost,
}

// IsUpdateKind reports whether k names a top-level Update field, i.e. a
// value usable in allowed_updates.
func IsUpdateKind(k Kind) bool {
	for _, known := range UpdateKinds {
		if known == k {
			return true
		}
	}
	return false
}
