package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tleguede/esgis-chatbot/internal/handlers"
	"github.com/tleguede/esgis-chatbot/internal/store"
)

func newTestServer(t *testing.T, s store.ConversationStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), s, store.DefaultHistoryLimit))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func history(t *testing.T, url string) handlers.HistoryResponse {
	t.Helper()
	resp := do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out handlers.HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func contents(h handlers.HistoryResponse) []string {
	out := make([]string, 0, len(h.Messages))
	for _, m := range h.Messages {
		out = append(out, string(m.From)+":"+m.Content)
	}
	return out
}

func TestChatRoundTrip(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(zerolog.Nop()))
	url := srv.URL + "/chat/42/messages"

	resp := do(t, http.MethodPost, url, `{"sender":"user","username":"alice","content":"hi"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, url, `{"sender":"bot","content":"hello"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	h := history(t, url)
	assert.Equal(t, int64(42), h.ChatID)
	assert.Equal(t, []string{"user:hi", "bot:hello"}, contents(h))
	assert.Equal(t, "alice", h.Messages[0].Username)
	assert.False(t, h.Degraded)

	resp = do(t, http.MethodDelete, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, history(t, url).Messages)

	do(t, http.MethodPost, url, `{"username":"alice","content":"again"}`)
	assert.Equal(t, []string{"user:again"}, contents(history(t, url)))
}

func TestHistoryLimit(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(zerolog.Nop()))
	url := srv.URL + "/chat/7/messages"

	for _, c := range []string{"a", "b", "c"} {
		do(t, http.MethodPost, url, `{"username":"bob","content":"`+c+`"}`)
	}

	assert.Equal(t, []string{"user:b", "user:c"}, contents(history(t, url+"?limit=2")))
	assert.Len(t, history(t, url+"?limit=nope").Messages, 3)
}

func TestPostMessageValidation(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(zerolog.Nop()))

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad chat id", "/chat/abc/messages", `{"username":"a","content":"hi"}`, http.StatusBadRequest},
		{"bad json", "/chat/1/messages", `{`, http.StatusBadRequest},
		{"empty content", "/chat/1/messages", `{"username":"a","content":"  "}`, http.StatusBadRequest},
		{"unknown sender", "/chat/1/messages", `{"sender":"system","content":"hi"}`, http.StatusBadRequest},
		{"missing username", "/chat/1/messages", `{"sender":"user","content":"hi"}`, http.StatusBadRequest},
		{"too long", "/chat/1/messages", `{"username":"a","content":"` + strings.Repeat("x", 5000) + `"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+tc.path, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestPostMessageRequiresJSON(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(zerolog.Nop()))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/1/messages", strings.NewReader("content=hi"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

// brokenStore fails every write and degrades every read.
type brokenStore struct{ store.ConversationStore }

var errBroken = errors.New("broken")

func (brokenStore) Ping(context.Context) error { return errBroken }
func (brokenStore) SaveUserMessage(context.Context, int64, string, string) error {
	return errBroken
}
func (brokenStore) ResetHistory(context.Context, int64) error { return errBroken }
func (brokenStore) GetHistory(context.Context, int64, int) store.History {
	return store.History{Messages: nil, Degraded: true}
}

func TestStoreFailures(t *testing.T) {
	srv := newTestServer(t, brokenStore{})
	url := srv.URL + "/chat/1/messages"

	resp := do(t, http.MethodPost, url, `{"username":"a","content":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = do(t, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	h := history(t, url)
	assert.True(t, h.Degraded)
	assert.NotNil(t, h.Messages)
	assert.Empty(t, h.Messages)

	resp = do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, store.NewMemoryStore(zerolog.Nop()))

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health handlers.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pass", health.Checks["store"].Status)

	do(t, http.MethodGet, srv.URL+"/chat/5/messages", "")
	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatbot_http_requests_total{method="GET",path="/chat/:id/messages",status="200"}`)
}
