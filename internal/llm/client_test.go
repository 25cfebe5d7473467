package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarsync/internal/config"
)

func newClient(url string) *ChatClient {
	cfg := config.DefaultConfig()
	cfg.ApplyPersona()
	cfg.LLM.BaseURL = url + "/"
	return NewChatClient(cfg.LLM, zerolog.Nop())
}

func TestChatClient_Generate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  The tide remembers.  "}}]}`))
	}))
	defer server.Close()

	reply, err := newClient(server.URL).Generate(context.Background(), "speak")
	require.NoError(t, err)
	assert.Equal(t, "The tide remembers.", reply)

	assert.Equal(t, "llama3.2", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 100, got.MaxTokens)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, config.GetPersona("hermes").SystemPrompt, got.Messages[0].Content)
	assert.Equal(t, chatMessage{Role: "user", Content: "speak"}, got.Messages[1])
}

func TestChatClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "http error", status: http.StatusInternalServerError, body: "model not loaded", wantMsg: "API error (500): model not loaded"},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"bad key"}}`, wantMsg: "bad key"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrEmptyResponse},
		{name: "blank reply", status: http.StatusOK, body: `{"choices":[{"message":{"content":" "}}]}`, wantErr: ErrEmptyResponse},
		{name: "garbage", status: http.StatusOK, body: `not json`, wantMsg: "parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newClient(server.URL).Generate(context.Background(), "hi")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestChatClient_SendsAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig().LLM
	cfg.BaseURL = server.URL
	cfg.APIKey = "secret"
	reply, err := NewChatClient(cfg, zerolog.Nop()).Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}
