package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tleguede/esgis-chatbot/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cases := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{StoreBackend: config.BackendMemory}},
		{"sqlite", config.Config{StoreBackend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "chat.db")}},
		{"redis", config.Config{StoreBackend: config.BackendRedis, RedisURL: "redis://" + mr.Addr(), TableName: "open-test"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(ctx, &tc.cfg, zerolog.Nop())
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.SaveUserMessage(ctx, 1, "alice", "hi"))
			h := s.GetHistory(ctx, 1, DefaultHistoryLimit)
			require.Len(t, h.Messages, 1)
			assert.Equal(t, "hi", h.Messages[0].Content)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, &config.Config{StoreBackend: "cassandra"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(ctx, &config.Config{StoreBackend: config.BackendDynamoDB}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoTable)

	_, err = Open(ctx, &config.Config{StoreBackend: config.BackendRedis, RedisURL: "redis://127.0.0.1:1", TableName: "x"}, zerolog.Nop())
	assert.Error(t, err)
}
