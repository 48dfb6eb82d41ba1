package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tleguede/esgis-chatbot/internal/models"
)

// timestampLayout is a fixed-width UTC ISO-8601 layout; string order
// equals time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// DefaultHistoryLimit is the history size callers ask for when the client
// does not specify one.
const DefaultHistoryLimit = 20

var (
	// ErrUnknownBackend is returned by Open for an unrecognised STORE_BACKEND.
	ErrUnknownBackend = errors.New("store: unknown backend")
	// ErrNoTable is returned when the wide-column backend has no table name.
	ErrNoTable = errors.New("store: table name is required")
)

// ConversationStore persists per-chat message history grouped into
// conversations. MemoryStore, PostgresStore, SQLiteStore and
// WideColumnStore implement this interface.
//
// Reads never fail: a storage error degrades to an empty History with
// Degraded set. Writes return storage errors, except that SaveBotMessage
// drops the message (and logs) when the chat has no current conversation.
type ConversationStore interface {
	// Connection management
	Ping(ctx context.Context) error
	Close() error

	// SaveUserMessage appends a user turn, starting a conversation if none is current.
	SaveUserMessage(ctx context.Context, chatID int64, username, content string) error
	// SaveBotMessage appends a bot turn to the current conversation.
	SaveBotMessage(ctx context.Context, chatID int64, content string) error
	// GetHistory returns the current conversation oldest first, capped to the
	// most recent limit messages when limit > 0.
	GetHistory(ctx context.Context, chatID int64, limit int) History
	// ResetHistory ends the current conversation.
	ResetHistory(ctx context.Context, chatID int64) error
}

// History is the result of a history read.
type History struct {
	Messages []models.Message `json:"messages"`
	// Degraded is set when a storage failure was swallowed and the
	// messages may be incomplete or missing.
	Degraded bool `json:"degraded"`
}

func emptyHistory() History {
	return History{Messages: []models.Message{}}
}

func degradedHistory() History {
	return History{Messages: []models.Message{}, Degraded: true}
}

// tail returns the last limit messages, or all of them when limit <= 0.
func tail(msgs []models.Message, limit int) []models.Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}

// reverse flips msgs in place; used after newest-first queries.
func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// clock hands out strictly increasing UTC instants so that two messages
// written by one store never share a timestamp. step is the storage
// resolution of the backend.
type clock struct {
	mu   sync.Mutex
	last time.Time
	step time.Duration
	now  func() time.Time
}

func newClock(step time.Duration) *clock {
	return &clock{step: step, now: time.Now}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.step)
	if !t.After(c.last) {
		t = c.last.Add(c.step)
	}
	c.last = t
	return t
}
