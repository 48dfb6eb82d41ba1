package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/ids"
	"github.com/tleguede/esgis-chatbot/internal/models"
)

// MemoryStore keeps history in process memory. Each chat has a single
// running sequence; nothing survives a restart. Meant for development
// and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	chats  map[int64][]models.Message
	clock  *clock
	logger zerolog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		chats:  make(map[int64][]models.Message),
		clock:  newClock(time.Nanosecond),
		logger: logger.With().Str("backend", BackendMemory).Logger(),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all history.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.chats = make(map[int64][]models.Message)
	s.mu.Unlock()
	return nil
}

// SaveUserMessage appends a user message to the chat's sequence.
func (s *MemoryStore) SaveUserMessage(_ context.Context, chatID int64, username, content string) error {
	s.append(chatID, username, models.SenderUser, content)
	return nil
}

// SaveBotMessage appends a bot message to the chat's sequence.
func (s *MemoryStore) SaveBotMessage(_ context.Context, chatID int64, content string) error {
	s.append(chatID, string(models.SenderBot), models.SenderBot, content)
	return nil
}

func (s *MemoryStore) append(chatID int64, username string, sender models.Sender, content string) {
	msg := models.Message{
		ID:       ids.NewUUIDv7().String(),
		ChatID:   chatID,
		Username: username,
		Sender:   sender,
		Content:  content,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Stamp under the lock so slice order and timestamp order agree.
	msg.Timestamp = s.clock.Now()
	s.chats[chatID] = append(s.chats[chatID], msg)
}

// GetHistory returns a copy of the chat's sequence.
func (s *MemoryStore) GetHistory(_ context.Context, chatID int64, limit int) History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := tail(s.chats[chatID], limit)
	copied := make([]models.Message, len(msgs))
	copy(copied, msgs)
	return History{Messages: copied}
}

// ResetHistory empties the chat's sequence.
func (s *MemoryStore) ResetHistory(_ context.Context, chatID int64) error {
	s.mu.Lock()
	delete(s.chats, chatID)
	s.mu.Unlock()

	s.logger.Debug().Int64("chat_id", chatID).Msg("history reset")
	return nil
}
