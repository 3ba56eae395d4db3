package models

import "time"

// TrackedMessage is an outbound message posted to the shared search room
// that must be deleted once it is older than the retention window.
type TrackedMessage struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

type EventKind string

const (
	EventStart      EventKind = "start"
	EventDocument   EventKind = "document"
	EventPhoto      EventKind = "photo"
	EventText       EventKind = "text"
	EventCallback   EventKind = "callback"
	EventNewMembers EventKind = "new_members"
)

// PhotoSize is one resolution variant of an uploaded photo.
type PhotoSize struct {
	AssetRef string `json:"asset_ref"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type DocumentPayload struct {
	AssetRef string `json:"asset_ref"`
	FileName string `json:"file_name"`
}

// Event is an inbound chat update as delivered by the transport bridge.
type Event struct {
	Kind         EventKind        `json:"kind"`
	UserID       int64            `json:"user_id"`
	UserName     string           `json:"user_name,omitempty"`
	ChatID       int64            `json:"chat_id"`
	MessageID    int64            `json:"message_id,omitempty"`
	Text         string           `json:"text,omitempty"`
	Caption      string           `json:"caption,omitempty"`
	Document     *DocumentPayload `json:"document,omitempty"`
	Photos       []PhotoSize      `json:"photos,omitempty"`
	CallbackData string           `json:"callback_data,omitempty"`
	NewMembers   []string         `json:"new_members,omitempty"`
}
