package store

import (
	"context"
	"time"

	"github.com/tleguede/esgis-chatbot/internal/metrics"
)

// instrumented records Prometheus metrics around another store.
type instrumented struct {
	ConversationStore
	backend string
}

// Instrument wraps s so every contract operation is counted and timed
// under the given backend label.
func Instrument(s ConversationStore, backend string) ConversationStore {
	return &instrumented{ConversationStore: s, backend: backend}
}

func (s *instrumented) observe(op string, start time.Time, result string) {
	metrics.StoreLatency.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	metrics.StoreOperations.WithLabelValues(s.backend, op, result).Inc()
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (s *instrumented) SaveUserMessage(ctx context.Context, chatID int64, username, content string) error {
	start := time.Now()
	err := s.ConversationStore.SaveUserMessage(ctx, chatID, username, content)
	s.observe("save_user_message", start, resultOf(err))
	return err
}

func (s *instrumented) SaveBotMessage(ctx context.Context, chatID int64, content string) error {
	start := time.Now()
	err := s.ConversationStore.SaveBotMessage(ctx, chatID, content)
	s.observe("save_bot_message", start, resultOf(err))
	return err
}

func (s *instrumented) GetHistory(ctx context.Context, chatID int64, limit int) History {
	start := time.Now()
	h := s.ConversationStore.GetHistory(ctx, chatID, limit)
	result := "ok"
	if h.Degraded {
		result = "degraded"
		metrics.DegradedReads.WithLabelValues(s.backend).Inc()
	}
	s.observe("get_history", start, result)
	return h
}

func (s *instrumented) ResetHistory(ctx context.Context, chatID int64) error {
	start := time.Now()
	err := s.ConversationStore.ResetHistory(ctx, chatID)
	s.observe("reset_history", start, resultOf(err))
	return err
}
