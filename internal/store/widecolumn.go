package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/ids"
	"github.com/tleguede/esgis-chatbot/internal/metrics"
	"github.com/tleguede/esgis-chatbot/internal/models"
)

// markerPageSize bounds the newest-first scan used to find the current
// conversation.
const markerPageSize = 10

// WideColumnStore segments history into conversations on a single sorted
// table (see keys.go for the layout).
//
// Lifecycle writes are additive: a conversation is opened by writing its
// INFO marker and closed by writing a separate STATUS record, never by
// updating the marker. Closing twice is harmless. The price is on the read
// side, where the current conversation has to be reconciled from several
// records.
//
// Multi-step sequences (resolve then append, close then start) are not
// transactional. Writes to one chat are serialised within the process;
// writers in different processes can still race, leaving two conversations
// without a STATUS record. The newest one wins.
type WideColumnStore struct {
	table   Table
	backend string
	clock   *clock
	locks   *chatLocks
	logger  zerolog.Logger
}

// chatLocks hands out one mutex per chat, dropped once no writer holds it.
type chatLocks struct {
	mu    sync.Mutex
	chats map[int64]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{chats: make(map[int64]*chatLock)}
}

// lock blocks until the caller owns chatID and returns the unlock func.
func (l *chatLocks) lock(chatID int64) func() {
	l.mu.Lock()
	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLock{}
		l.chats[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.chats, chatID)
		}
		l.mu.Unlock()
	}
}

// NewWideColumnStore wraps table. backend names the table flavour in logs.
func NewWideColumnStore(table Table, backend string, logger zerolog.Logger) *WideColumnStore {
	return &WideColumnStore{
		table:   table,
		backend: backend,
		clock:   newClock(time.Nanosecond),
		locks:   newChatLocks(),
		logger:  logger.With().Str("backend", backend).Logger(),
	}
}

// Ping checks the underlying table.
func (s *WideColumnStore) Ping(ctx context.Context) error {
	return s.table.Ping(ctx)
}

// Close closes the underlying table.
func (s *WideColumnStore) Close() error {
	return s.table.Close()
}

// CurrentConversation returns the id of the chat's current conversation,
// or "" when there is none.
//
// The newest markerPageSize records of the CONV# namespace are read newest
// first. STATUS records mark their conversation closed (they sort after
// the INFO marker and messages of the same conversation, so they are seen
// first). The first INFO marker not marked closed wins. Failing that, the
// newest message of a conversation not known to be closed wins: markers
// are only an index and the message's embedded id is authoritative.
// As a last resort a second query looks at the newest legacy MSG# record.
func (s *WideColumnStore) CurrentConversation(ctx context.Context, chatID int64) (string, error) {
	pk := partitionKey(chatID)

	items, err := s.table.Query(ctx, Query{
		PK:         pk,
		SKPrefix:   conversationPrefix,
		Descending: true,
		Limit:      markerPageSize,
	})
	if err != nil {
		return "", fmt.Errorf("query conversations: %w", err)
	}

	closed := make(map[string]bool)
	var newestMessage string
	for _, item := range items {
		if item.ConversationID == "" {
			continue
		}
		switch kindOf(item.SK) {
		case kindStatus:
			if item.Status == string(models.ConversationClosed) {
				closed[item.ConversationID] = true
			}
		case kindInfo:
			if !closed[item.ConversationID] && item.Status != string(models.ConversationClosed) {
				return item.ConversationID, nil
			}
		case kindMessage:
			if newestMessage == "" && !closed[item.ConversationID] {
				newestMessage = item.ConversationID
			}
		}
	}
	if newestMessage != "" {
		return newestMessage, nil
	}

	legacy, err := s.table.Query(ctx, Query{
		PK:         pk,
		SKPrefix:   legacyMessagePrefix,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("query legacy messages: %w", err)
	}
	if len(legacy) > 0 {
		item := legacy[0]
		if item.ConversationID != "" && !closed[item.ConversationID] &&
			item.Status != string(models.ConversationClosed) {
			return item.ConversationID, nil
		}
	}

	return "", nil
}

// StartConversation writes the INFO marker of a fresh active conversation.
func (s *WideColumnStore) StartConversation(ctx context.Context, chatID int64) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        ids.NewConversationID(),
		ChatID:    chatID,
		Status:    models.ConversationActive,
		CreatedAt: s.clock.Now(),
	}

	err := s.table.PutItem(ctx, Item{
		PK:             partitionKey(chatID),
		SK:             conversationInfoKey(conv.ID),
		Type:           recordMarker,
		ConversationID: conv.ID,
		Status:         string(conv.Status),
		Timestamp:      formatTimestamp(conv.CreatedAt),
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("start conversation: %w", err)
	}

	metrics.ConversationsStarted.Inc()
	s.logger.Debug().
		Int64("chat_id", chatID).
		Str("conversation_id", conv.ID).
		Msg("conversation started")

	return conv, nil
}

// CloseConversation writes the STATUS record closing conversationID.
func (s *WideColumnStore) CloseConversation(ctx context.Context, chatID int64, conversationID string) error {
	err := s.table.PutItem(ctx, Item{
		PK:             partitionKey(chatID),
		SK:             conversationStatusKey(conversationID),
		Type:           recordStatus,
		ConversationID: conversationID,
		Status:         string(models.ConversationClosed),
		Timestamp:      formatTimestamp(s.clock.Now()),
	})
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}

	metrics.ConversationsClosed.Inc()
	s.logger.Debug().
		Int64("chat_id", chatID).
		Str("conversation_id", conversationID).
		Msg("conversation closed")

	return nil
}

// ConversationHistory returns the messages of one conversation oldest
// first, capped to the most recent limit when limit > 0.
func (s *WideColumnStore) ConversationHistory(ctx context.Context, chatID int64, conversationID string, limit int) ([]models.Message, error) {
	items, err := s.table.Query(ctx, Query{
		PK:         partitionKey(chatID),
		SKPrefix:   conversationMessagePrefix(conversationID),
		Descending: limit > 0,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(items))
	for _, item := range items {
		msgs = append(msgs, s.toMessage(chatID, item))
	}
	if limit > 0 {
		reverse(msgs)
	}
	return msgs, nil
}

func (s *WideColumnStore) toMessage(chatID int64, item Item) models.Message {
	msg := models.Message{
		ID:             item.SK,
		ChatID:         chatID,
		ConversationID: item.ConversationID,
		Username:       item.Username,
		Sender:         models.Sender(item.Sender),
		Content:        item.Content,
	}
	if ts, err := parseTimestamp(item.Timestamp); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

func (s *WideColumnStore) putMessage(ctx context.Context, chatID int64, conversationID, username string, sender models.Sender, content string) error {
	now := s.clock.Now()
	err := s.table.PutItem(ctx, Item{
		PK:             partitionKey(chatID),
		SK:             messageKey(conversationID, now),
		Type:           recordMessage,
		ConversationID: conversationID,
		Sender:         string(sender),
		Username:       username,
		Content:        content,
		Timestamp:      formatTimestamp(now),
	})
	if err != nil {
		return fmt.Errorf("put message: %w", err)
	}
	return nil
}

// SaveUserMessage appends to the current conversation, starting one if
// the chat has none. A failed lookup is returned rather than treated as
// "none", which would fork a second active conversation.
func (s *WideColumnStore) SaveUserMessage(ctx context.Context, chatID int64, username, content string) error {
	defer s.locks.lock(chatID)()

	conversationID, err := s.CurrentConversation(ctx, chatID)
	if err != nil {
		return err
	}

	if conversationID == "" {
		conv, err := s.StartConversation(ctx, chatID)
		if err != nil {
			return err
		}
		conversationID = conv.ID
	}

	return s.putMessage(ctx, chatID, conversationID, username, models.SenderUser, content)
}

// SaveBotMessage appends to the current conversation. Without one the
// reply is logged and dropped; nil is returned.
func (s *WideColumnStore) SaveBotMessage(ctx context.Context, chatID int64, content string) error {
	defer s.locks.lock(chatID)()

	conversationID, err := s.CurrentConversation(ctx, chatID)
	if err != nil {
		return err
	}

	if conversationID == "" {
		metrics.BotMessagesDropped.Inc()
		s.logger.Warn().Int64("chat_id", chatID).Msg("no active conversation for bot message, dropping it")
		return nil
	}

	return s.putMessage(ctx, chatID, conversationID, string(models.SenderBot), models.SenderBot, content)
}

// GetHistory returns the current conversation's messages.
func (s *WideColumnStore) GetHistory(ctx context.Context, chatID int64, limit int) History {
	conversationID, err := s.CurrentConversation(ctx, chatID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("resolving conversation failed")
		return degradedHistory()
	}
	if conversationID == "" {
		return emptyHistory()
	}

	msgs, err := s.ConversationHistory(ctx, chatID, conversationID, limit)
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("chat_id", chatID).
			Str("conversation_id", conversationID).
			Msg("history query failed")
		return degradedHistory()
	}
	return History{Messages: msgs}
}

// ResetHistory closes the current conversation and immediately starts its
// successor. A chat with no current conversation is left alone.
func (s *WideColumnStore) ResetHistory(ctx context.Context, chatID int64) error {
	defer s.locks.lock(chatID)()

	conversationID, err := s.CurrentConversation(ctx, chatID)
	if err != nil {
		return err
	}
	if conversationID == "" {
		s.logger.Debug().Int64("chat_id", chatID).Msg("reset without current conversation")
		return nil
	}

	if err := s.CloseConversation(ctx, chatID, conversationID); err != nil {
		return err
	}
	_, err = s.StartConversation(ctx, chatID)
	return err
}
