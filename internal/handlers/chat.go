package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tleguede/esgis-chatbot/internal/models"
)

// maxHistoryLimit caps the limit query parameter.
const maxHistoryLimit = 200

// PostMessageRequest represents the save message request.
type PostMessageRequest struct {
	Sender   models.Sender `json:"sender"`
	Username string        `json:"username,omitempty"`
	Content  string        `json:"content"`
}

// StatusResponse is the body of successful write requests.
type StatusResponse struct {
	Status string `json:"status"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	From           models.Sender `json:"from"`
	Username       string        `json:"username,omitempty"`
	Content        string        `json:"content"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Timestamp      string        `json:"timestamp"`
}

// HistoryResponse represents the get history response.
type HistoryResponse struct {
	ChatID   int64             `json:"chat_id"`
	Messages []MessageResponse `json:"messages"`
	Degraded bool              `json:"degraded"`
}

// chatID parses the {chatId} URL parameter.
func chatID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chatId"), 10, 64)
	return id, err == nil
}

// PostMessage records one turn of a chat.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := chatID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Validate body
	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}
	if req.Sender == "" {
		req.Sender = models.SenderUser
	}
	if !req.Sender.Valid() {
		h.Error(w, http.StatusBadRequest, "sender must be 'user' or 'bot'")
		return
	}

	var err error
	switch req.Sender {
	case models.SenderUser:
		username := sanitizeName(req.Username)
		if username == "" {
			h.Error(w, http.StatusBadRequest, "username is required")
			return
		}
		err = h.store.SaveUserMessage(r.Context(), id, username, req.Content)
	case models.SenderBot:
		err = h.store.SaveBotMessage(r.Context(), id, req.Content)
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("chat_id", id).Msg("failed to save message")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	h.JSON(w, http.StatusCreated, StatusResponse{Status: "success"})
}

// GetHistory returns the current conversation of a chat.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := chatID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	limit := h.historyLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history := h.store.GetHistory(r.Context(), id, limit)

	// Build response
	msgs := make([]MessageResponse, len(history.Messages))
	for i, msg := range history.Messages {
		msgs[i] = MessageResponse{
			From:           msg.Sender,
			Username:       msg.Username,
			Content:        msg.Content,
			ConversationID: msg.ConversationID,
			Timestamp:      msg.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		ChatID:   id,
		Messages: msgs,
		Degraded: history.Degraded,
	})
}

// ResetHistory ends the current conversation of a chat.
func (h *Handler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := chatID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid chat ID")
		return
	}

	if err := h.store.ResetHistory(r.Context(), id); err != nil {
		h.logger.Error().Err(err).Int64("chat_id", id).Msg("failed to reset history")
		h.Error(w, http.StatusInternalServerError, "failed to reset history")
		return
	}

	h.JSON(w, http.StatusOK, StatusResponse{Status: "success"})
}
