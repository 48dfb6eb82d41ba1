package models

import "time"

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Message is one exchange turn. Messages are append-only.
type Message struct {
	ID             string    `json:"id,omitempty"`
	ChatID         int64     `json:"chat_id"`
	ConversationID string    `json:"conversation_id,omitempty"` // empty on flat backends
	Username       string    `json:"username,omitempty"`
	Sender         Sender    `json:"from"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}
