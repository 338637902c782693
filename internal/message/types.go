package message

import (
	"encoding/json"
	"time"
)

// Inbound is the normalized message format from any channel bridge.
type Inbound struct {
	Channel     string          `json:"channel"`
	ChatID      string          `json:"chatId"`
	SenderID    string          `json:"senderId"`
	Text        string          `json:"text"`
	MessageID   string          `json:"messageId,omitempty"`
	Timestamp   time.Time       `json:"timestamp,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"` // original platform payload, passed through untouched
}

type Attachment struct {
	Type   string `json:"type"` // "image" | "audio" | "video" | "file"
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
	MIME   string `json:"mime,omitempty"`
	Name   string `json:"name,omitempty"`
}

// HasMedia reports whether the message carries any attachment.
func (m *Inbound) HasMedia() bool {
	return len(m.Attachments) > 0
}

// Outbound is sent back to a channel via its bridge.
type Outbound struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
}
