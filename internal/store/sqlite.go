package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/ids"
	"github.com/tleguede/esgis-chatbot/internal/models"
)

// SQLiteStore is the embedded flavour of the relational backend. Same
// flat table and semantics as PostgresStore.
type SQLiteStore struct {
	db     *sql.DB
	clock  *clock
	logger zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatbot.db"
func NewSQLiteStore(ctx context.Context, dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatbot.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		db:     db,
		clock:  newClock(time.Nanosecond),
		logger: logger.With().Str("backend", BackendSQLite).Logger(),
	}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. created_at holds the
// fixed-width timestamp text so it sorts chronologically.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveUserMessage inserts a user message row.
func (s *SQLiteStore) SaveUserMessage(ctx context.Context, chatID int64, username, content string) error {
	return s.insert(ctx, chatID, username, models.SenderUser, content)
}

// SaveBotMessage inserts a bot message row.
func (s *SQLiteStore) SaveBotMessage(ctx context.Context, chatID int64, content string) error {
	return s.insert(ctx, chatID, string(models.SenderBot), models.SenderBot, content)
}

func (s *SQLiteStore) insert(ctx context.Context, chatID int64, username string, sender models.Sender, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, username, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ids.NewUUIDv7().String(), chatID, username, string(sender), content, formatTimestamp(s.clock.Now()))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetHistory returns the chat's messages oldest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, chatID int64, limit int) History {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, chat_id, username, sender, content, created_at
			FROM messages
			WHERE chat_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`, chatID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, chat_id, username, sender, content, created_at
			FROM messages
			WHERE chat_id = ?
			ORDER BY created_at ASC, id ASC
		`, chatID)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history query failed")
		return degradedHistory()
	}
	defer rows.Close()

	msgs := make([]models.Message, 0)
	degraded := false
	for rows.Next() {
		var (
			msg       models.Message
			sender    string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Username, &sender, &msg.Content, &createdAt); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history scan failed")
			return degradedHistory()
		}
		ts, err := parseTimestamp(createdAt)
		if err != nil {
			s.logger.Warn().Err(err).Str("created_at", createdAt).Msg("skipping row with bad timestamp")
			degraded = true
			continue
		}
		msg.Sender = models.Sender(sender)
		msg.Timestamp = ts
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history rows failed")
		return degradedHistory()
	}

	if limit > 0 {
		reverse(msgs)
	}
	return History{Messages: msgs, Degraded: degraded}
}

// ResetHistory deletes every row of the chat.
func (s *SQLiteStore) ResetHistory(ctx context.Context, chatID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug().Int64("chat_id", chatID).Int64("deleted", n).Msg("history reset")
	return nil
}
