package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("test-token")
	tg.BaseURL = srv.URL

	err := tg.Send(context.Background(), 42, "hello")
	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, float64(42), gotBody["chat_id"])
	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, "Markdown", gotBody["parse_mode"])
}

func TestTelegramSendNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tg := NewTelegram("bad-token")
	tg.BaseURL = srv.URL

	assert.Error(t, tg.Send(context.Background(), 42, "hello"))
}
