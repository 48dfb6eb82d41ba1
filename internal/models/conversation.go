package models

import "time"

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is a bounded run of messages for one chat.
// At most one conversation per chat is active; a closed one is never reopened.
type Conversation struct {
	ID        string             `json:"id"`
	ChatID    int64              `json:"chat_id"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}
