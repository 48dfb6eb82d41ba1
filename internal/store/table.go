package store

import "context"

// Table is a sorted key-value table addressed by (partition key, sort key).
// DynamoTable and RedisTable implement it.
type Table interface {
	Ping(ctx context.Context) error
	Close() error

	// PutItem writes item, replacing any record with the same keys.
	PutItem(ctx context.Context, item Item) error
	// Query reads one partition, restricted to sort keys starting with
	// SKPrefix, in sort key order.
	Query(ctx context.Context, q Query) ([]Item, error)
}

// Query selects records of one partition.
type Query struct {
	PK         string
	SKPrefix   string
	Descending bool
	Limit      int // <= 0 reads everything
}

// Item is one record of the conversation table. Optional attributes are
// omitted when empty.
type Item struct {
	PK             string `json:"PK" dynamodbav:"PK"`
	SK             string `json:"SK" dynamodbav:"SK"`
	Type           string `json:"type,omitempty" dynamodbav:"type,omitempty"`
	ConversationID string `json:"conversationId" dynamodbav:"conversationId"`
	Status         string `json:"status,omitempty" dynamodbav:"status,omitempty"`
	Sender         string `json:"sender,omitempty" dynamodbav:"sender,omitempty"`
	Username       string `json:"username,omitempty" dynamodbav:"username,omitempty"`
	Content        string `json:"content,omitempty" dynamodbav:"content,omitempty"`
	Timestamp      string `json:"timestamp" dynamodbav:"timestamp"`
}
