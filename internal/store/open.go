package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/config"
)

// Backend labels used in logs and metrics.
const (
	BackendMemory   = config.BackendMemory
	BackendPostgres = config.BackendPostgres
	BackendSQLite   = config.BackendSQLite
	BackendDynamoDB = config.BackendDynamoDB
	BackendRedis    = config.BackendRedis
)

// Open builds the store selected by cfg.StoreBackend, wrapped with metrics.
// Postgres migrations are the caller's job (see RunMigrations).
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ConversationStore, error) {
	var (
		s   ConversationStore
		err error
	)

	switch cfg.StoreBackend {
	case BackendMemory:
		s = NewMemoryStore(logger)

	case BackendPostgres:
		s, err = NewPostgresStore(ctx, cfg.DatabaseURL, logger)

	case BackendSQLite:
		s, err = NewSQLiteStore(ctx, cfg.SQLitePath, logger)

	case BackendRedis:
		var table *RedisTable
		table, err = NewRedisTable(ctx, cfg.RedisURL, cfg.TableName)
		if err == nil {
			s = NewWideColumnStore(table, BackendRedis, logger)
		}

	case BackendDynamoDB:
		var table *DynamoTable
		table, err = NewDynamoTable(ctx, cfg.AWSRegion, cfg.DynamoEndpoint, cfg.TableName)
		if err == nil && cfg.DynamoCreateTable {
			err = table.EnsureTable(ctx)
		}
		if err == nil {
			s = NewWideColumnStore(table, BackendDynamoDB, logger)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	return Instrument(s, cfg.StoreBackend), nil
}
