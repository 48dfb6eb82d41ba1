package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/tleguede/esgis-chatbot/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store        store.ConversationStore
	historyLimit int
	logger       zerolog.Logger
}

// NewHandler creates a new Handler. historyLimit is the number of messages
// returned when a request has no limit parameter.
func NewHandler(s store.ConversationStore, historyLimit int, logger zerolog.Logger) *Handler {
	if historyLimit <= 0 {
		historyLimit = store.DefaultHistoryLimit
	}
	return &Handler{store: s, historyLimit: historyLimit, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
