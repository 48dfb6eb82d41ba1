package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTable stores the conversation table in Redis. A partition is a
// sorted set whose members are the sort keys, all with score 0 so Redis
// orders them lexicographically, plus a hash mapping sort key to the
// JSON record.
type RedisTable struct {
	client *redis.Client
	prefix string
}

// NewRedisTable connects to Redis. Keys are namespaced under tableName.
func NewRedisTable(ctx context.Context, redisURL, tableName string) (*RedisTable, error) {
	if tableName == "" {
		return nil, ErrNoTable
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisTable{client: client, prefix: tableName}, nil
}

// Close closes the Redis connection.
func (t *RedisTable) Close() error {
	return t.client.Close()
}

// Ping checks the Redis connection.
func (t *RedisTable) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// sortKeysKey returns the key of a partition's sort key index.
func (t *RedisTable) sortKeysKey(pk string) string {
	return fmt.Sprintf("%s:%s:keys", t.prefix, pk)
}

// itemsKey returns the key of a partition's record hash.
func (t *RedisTable) itemsKey(pk string) string {
	return fmt.Sprintf("%s:%s:items", t.prefix, pk)
}

// PutItem writes the record and indexes its sort key atomically.
func (t *RedisTable) PutItem(ctx context.Context, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, t.itemsKey(item.PK), item.SK, data)
		pipe.ZAdd(ctx, t.sortKeysKey(item.PK), redis.Z{Score: 0, Member: item.SK})
		return nil
	})
	return err
}

// Query reads sort keys with ZRANGEBYLEX and then the records they name.
// Index entries whose record is missing are skipped.
func (t *RedisTable) Query(ctx context.Context, q Query) ([]Item, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if q.SKPrefix != "" {
		by.Min = "[" + q.SKPrefix
		by.Max = "[" + q.SKPrefix + "\xff"
	}
	if q.Limit > 0 {
		by.Count = int64(q.Limit)
	}

	var (
		sortKeys []string
		err      error
	)
	if q.Descending {
		sortKeys, err = t.client.ZRevRangeByLex(ctx, t.sortKeysKey(q.PK), by).Result()
	} else {
		sortKeys, err = t.client.ZRangeByLex(ctx, t.sortKeysKey(q.PK), by).Result()
	}
	if err != nil {
		return nil, err
	}
	if len(sortKeys) == 0 {
		return []Item{}, nil
	}

	values, err := t.client.HMGet(ctx, t.itemsKey(q.PK), sortKeys...).Result()
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}
