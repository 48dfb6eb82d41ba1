package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tleguede/esgis-chatbot/internal/models"
)

type storeFactory func(t *testing.T) ConversationStore

func newTestMemoryStore(t *testing.T) ConversationStore {
	return NewMemoryStore(zerolog.Nop())
}

func newTestSQLiteStore(t *testing.T) ConversationStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRedisTable(t *testing.T) (*RedisTable, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	table, err := NewRedisTable(context.Background(), "redis://"+mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })
	return table, mr
}

func newTestWideColumnStore(t *testing.T) ConversationStore {
	table, _ := newTestRedisTable(t)
	return NewWideColumnStore(table, BackendRedis, zerolog.Nop())
}

func newTestPostgresStore(t *testing.T) ConversationStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, url))
	s, err := NewPostgresStore(ctx, url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestDynamoStore(t *testing.T) ConversationStore {
	t.Helper()
	endpoint := os.Getenv("TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_DYNAMODB_ENDPOINT not set")
	}
	ctx := context.Background()
	table, err := NewDynamoTable(ctx, "us-east-1", endpoint, fmt.Sprintf("chatbot-test-%d", uniqueChat()))
	require.NoError(t, err)
	require.NoError(t, table.EnsureTable(ctx))
	return NewWideColumnStore(table, BackendDynamoDB, zerolog.Nop())
}

var backends = map[string]storeFactory{
	BackendMemory:    newTestMemoryStore,
	BackendSQLite:    newTestSQLiteStore,
	BackendRedis:     newTestWideColumnStore,
	BackendPostgres:  newTestPostgresStore,
	BackendDynamoDB:  newTestDynamoStore,
	"dynamodb-paged": newTestFakeDynamoStore,
	"instrumented": func(t *testing.T) ConversationStore {
		return Instrument(newTestMemoryStore(t), "test")
	},
}

type turn struct {
	sender  models.Sender
	content string
}

func turnsOf(h History) []turn {
	out := make([]turn, 0, len(h.Messages))
	for _, m := range h.Messages {
		out = append(out, turn{m.Sender, m.Content})
	}
	return out
}

// chatSeq is seeded from the clock so Postgres runs never reuse the chat
// ids of an earlier run.
var chatSeq = time.Now().UnixNano() / 1000

func uniqueChat() int64 {
	return atomic.AddInt64(&chatSeq, 1)
}

func TestConversationStoreContract(t *testing.T) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("empty chat has empty history", func(t *testing.T) {
				s := factory(t)
				h := s.GetHistory(ctx, uniqueChat(), 0)
				assert.False(t, h.Degraded)
				assert.NotNil(t, h.Messages)
				assert.Empty(t, h.Messages)
			})

			t.Run("last message is the saved user message", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", "hi"))

				h := s.GetHistory(ctx, chat, 0)
				require.NotEmpty(t, h.Messages)
				last := h.Messages[len(h.Messages)-1]
				assert.Equal(t, models.SenderUser, last.Sender)
				assert.Equal(t, "hi", last.Content)
				assert.Equal(t, "alice", last.Username)
				assert.Equal(t, chat, last.ChatID)
				assert.False(t, last.Timestamp.IsZero())
			})

			t.Run("alternating turns come back in call order", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				var want []turn
				for i := 0; i < 6; i++ {
					u := fmt.Sprintf("question %d", i)
					b := fmt.Sprintf("answer %d", i)
					require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", u))
					require.NoError(t, s.SaveBotMessage(ctx, chat, b))
					want = append(want, turn{models.SenderUser, u}, turn{models.SenderBot, b})
				}

				h := s.GetHistory(ctx, chat, 0)
				assert.Equal(t, want, turnsOf(h))
				for i := 1; i < len(h.Messages); i++ {
					assert.True(t, h.Messages[i].Timestamp.After(h.Messages[i-1].Timestamp))
				}
			})

			t.Run("limit keeps the most recent messages", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				for i := 0; i < 5; i++ {
					require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", fmt.Sprintf("m%d", i)))
				}

				h := s.GetHistory(ctx, chat, 2)
				assert.Equal(t, []turn{
					{models.SenderUser, "m3"},
					{models.SenderUser, "m4"},
				}, turnsOf(h))
			})

			t.Run("reset then read is empty", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", "hi"))
				require.NoError(t, s.ResetHistory(ctx, chat))

				assert.Empty(t, s.GetHistory(ctx, chat, 0).Messages)
			})

			t.Run("reset on empty chat is harmless", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				require.NoError(t, s.ResetHistory(ctx, chat))
				assert.Empty(t, s.GetHistory(ctx, chat, 0).Messages)
			})

			t.Run("alice scenario", func(t *testing.T) {
				s := factory(t)
				chat := uniqueChat()
				require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", "hi"))
				require.NoError(t, s.SaveBotMessage(ctx, chat, "hello"))
				assert.Equal(t, []turn{
					{models.SenderUser, "hi"},
					{models.SenderBot, "hello"},
				}, turnsOf(s.GetHistory(ctx, chat, 0)))

				require.NoError(t, s.ResetHistory(ctx, chat))
				assert.Empty(t, s.GetHistory(ctx, chat, 0).Messages)

				require.NoError(t, s.SaveUserMessage(ctx, chat, "alice", "again"))
				assert.Equal(t, []turn{
					{models.SenderUser, "again"},
				}, turnsOf(s.GetHistory(ctx, chat, 0)))
			})

			t.Run("chats do not see each other", func(t *testing.T) {
				s := factory(t)
				a, b := uniqueChat(), uniqueChat()

				var wg sync.WaitGroup
				for _, chat := range []int64{a, b} {
					wg.Add(1)
					go func(chat int64) {
						defer wg.Done()
						for i := 0; i < 20; i++ {
							assert.NoError(t, s.SaveUserMessage(ctx, chat, "u", fmt.Sprintf("%d-%d", chat, i)))
						}
					}(chat)
				}
				wg.Wait()

				for _, chat := range []int64{a, b} {
					h := s.GetHistory(ctx, chat, 0)
					require.Len(t, h.Messages, 20)
					for i, m := range h.Messages {
						assert.Equal(t, chat, m.ChatID)
						assert.Equal(t, fmt.Sprintf("%d-%d", chat, i), m.Content)
					}
				}
			})

			t.Run("ping", func(t *testing.T) {
				s := factory(t)
				assert.NoError(t, s.Ping(ctx))
			})
		})
	}
}
