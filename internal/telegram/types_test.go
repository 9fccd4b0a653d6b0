package telegram

import (
	"encoding/json"
	"testing"
)

func TestUpdate_DecodeMessage(t *testing.T) {
	raw := `{
		"update_id": 123456789,
		"message": {
			"message_id": 1,
			"from": {"id": 987654321, "is_bot": false, "first_name": "Karim", "username": "karim"},
			"chat": {"id": -100200, "type": "supergroup", "title": "ops"},
			"date": 1709827200,
			"text": "/start@routerbot now"
		}
	}`

	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if u.UpdateID != 123456789 {
		t.Errorf("UpdateID = %d, want 123456789", u.UpdateID)
	}
	if u.Message == nil {
		t.Fatal("Message is nil")
	}
	if u.Message.From == nil || u.Message.From.Username != "karim" {
		t.Fatalf("From = %+v", u.Message.From)
	}
	if u.Message.Chat.ID != -100200 {
		t.Errorf("Chat.ID = %d, want -100200", u.Message.Chat.ID)
	}
	if u.Message.Text != "/start@routerbot now" {
		t.Errorf("Text = %q", u.Message.Text)
	}
}

func TestUpdate_DecodePhotoSizes(t *testing.T) {
	raw := `{
		"update_id": 1,
		"message": {
			"message_id": 3,
			"chat": {"id": 1, "type": "private"},
			"date": 1,
			"media_group_id": "g1",
			"caption": "holiday",
			"photo": [
				{"file_id": "small", "file_unique_id": "a", "width": 90, "height": 90},
				{"file_id": "big", "file_unique_id": "b", "width": 800, "height": 600}
			]
		}
	}`

	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(u.Message.Photo) != 2 {
		t.Fatalf("Photo len = %d, want 2", len(u.Message.Photo))
	}
	if u.Message.Photo[1].Width != 800 || u.Message.Photo[1].Height != 600 {
		t.Errorf("Photo[1] = %+v", u.Message.Photo[1])
	}
	if u.Message.MediaGroupID != "g1" || u.Message.Caption != "holiday" {
		t.Errorf("MediaGroupID=%q Caption=%q", u.Message.MediaGroupID, u.Message.Caption)
	}
}

func TestUpdate_DecodeNonMessageKinds(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, u Update)
	}{
		{
			name: "callback query",
			raw:  `{"update_id":2,"callback_query":{"id":"cb1","from":{"id":5,"is_bot":false,"first_name":"A"},"chat_instance":"x","data":"yes","message":{"message_id":9,"chat":{"id":5,"type":"private"},"date":2}}}`,
			check: func(t *testing.T, u Update) {
				if u.CallbackQuery == nil || u.CallbackQuery.Data != "yes" || u.CallbackQuery.Message.MessageID != 9 {
					t.Errorf("CallbackQuery = %+v", u.CallbackQuery)
				}
			},
		},
		{
			name: "poll answer",
			raw:  `{"update_id":3,"poll_answer":{"poll_id":"p","user":{"id":8,"is_bot":false,"first_name":"B"},"option_ids":[0,2]}}`,
			check: func(t *testing.T, u Update) {
				if u.PollAnswer == nil || len(u.PollAnswer.OptionIDs) != 2 || u.PollAnswer.User.ID != 8 {
					t.Errorf("PollAnswer = %+v", u.PollAnswer)
				}
			},
		},
		{
			name: "reaction",
			raw:  `{"update_id":4,"message_reaction":{"chat":{"id":-1,"type":"group"},"message_id":4,"date":5,"old_reaction":[],"new_reaction":[{"type":"emoji","emoji":"👍"}]}}`,
			check: func(t *testing.T, u Update) {
				if u.MessageReaction == nil || len(u.MessageReaction.NewReaction) != 1 {
					t.Fatalf("MessageReaction = %+v", u.MessageReaction)
				}
				if u.MessageReaction.NewReaction[0].Emoji != "👍" {
					t.Errorf("emoji = %q", u.MessageReaction.NewReaction[0].Emoji)
				}
			},
		},
		{
			name: "chat boost",
			raw:  `{"update_id":5,"chat_boost":{"chat":{"id":-7,"type":"channel"},"boost":{"boost_id":"b","add_date":1,"expiration_date":2,"source":{"source":"premium","user":{"id":3,"is_bot":false,"first_name":"C"}}}}}`,
			check: func(t *testing.T, u Update) {
				if u.ChatBoost == nil || u.ChatBoost.Boost.Source.Source != "premium" {
					t.Errorf("ChatBoost = %+v", u.ChatBoost)
				}
			},
		},
		{
			name: "business message",
			raw:  `{"update_id":6,"business_message":{"message_id":1,"business_connection_id":"bc","chat":{"id":12,"type":"private"},"date":1,"text":"hi"}}`,
			check: func(t *testing.T, u Update) {
				if u.BusinessMessage == nil || u.BusinessMessage.BusinessConnectionID != "bc" {
					t.Errorf("BusinessMessage = %+v", u.BusinessMessage)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Update
			if err := json.Unmarshal([]byte(tt.raw), &u); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tt.check(t, u)
		})
	}
}

func TestUpdate_UnknownFieldsIgnored(t *testing.T) {
	raw := `{"update_id": 9, "some_future_update": {"x": 1}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.UpdateID != 9 || u.Message != nil {
		t.Errorf("u = %+v", u)
	}
}
