package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/ids"
	"github.com/tleguede/esgis-chatbot/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the embedded schema files in name order.
// Every statement is idempotent, so running it on each start is safe.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

// PostgresStore keeps history as a flat message table in PostgreSQL.
// There is no conversation column: a chat has one running history and
// ResetHistory deletes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	clock  *clock
	logger zerolog.Logger
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		clock:  newClock(time.Microsecond),
		logger: logger.With().Str("backend", BackendPostgres).Logger(),
	}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveUserMessage inserts a user message row.
func (s *PostgresStore) SaveUserMessage(ctx context.Context, chatID int64, username, content string) error {
	return s.insert(ctx, chatID, username, models.SenderUser, content)
}

// SaveBotMessage inserts a bot message row.
func (s *PostgresStore) SaveBotMessage(ctx context.Context, chatID int64, content string) error {
	return s.insert(ctx, chatID, string(models.SenderBot), models.SenderBot, content)
}

func (s *PostgresStore) insert(ctx context.Context, chatID int64, username string, sender models.Sender, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, username, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ids.NewUUIDv7().String(), chatID, username, string(sender), content, s.clock.Now())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetHistory returns the chat's messages oldest first.
func (s *PostgresStore) GetHistory(ctx context.Context, chatID int64, limit int) History {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id::text, chat_id, username, sender, content, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, chatID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id::text, chat_id, username, sender, content, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at ASC, id ASC
		`, chatID)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history query failed")
		return degradedHistory()
	}
	defer rows.Close()

	msgs := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg    models.Message
			sender string
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Username, &sender, &msg.Content, &msg.Timestamp); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history scan failed")
			return degradedHistory()
		}
		msg.Sender = models.Sender(sender)
		msg.Timestamp = msg.Timestamp.UTC()
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history rows failed")
		return degradedHistory()
	}

	if limit > 0 {
		reverse(msgs)
	}
	return History{Messages: msgs}
}

// ResetHistory deletes every row of the chat. The history is gone for good.
func (s *PostgresStore) ResetHistory(ctx context.Context, chatID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	s.logger.Debug().Int64("chat_id", chatID).Int64("deleted", tag.RowsAffected()).Msg("history reset")
	return nil
}
