package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

func TestChatService_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream  bool           `json:"stream"`
		Options map[string]any `json:"options"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":" local answer "},"done":true}` + "\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc, err := NewChatService(Config{BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, svc.ModelName())

	out, err := svc.Complete(context.Background(), "sys",
		[]driven.ChatMessage{{Role: "user", Content: "q"}},
		driven.ChatOptions{Temperature: 0.7, MaxTokens: 2000})
	require.NoError(t, err)
	assert.Equal(t, "local answer", out)

	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.InDelta(t, 0.7, got.Options["temperature"], 1e-9)
	assert.InDelta(t, 2000, got.Options["num_predict"], 1e-9)

	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestChatService_ModelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama3.2' not found"}`))
	}))
	defer server.Close()

	svc, err := NewChatService(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "", nil, driven.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrChatProvider)
}

func TestChatService_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	svc, err := NewChatService(Config{BaseURL: url})
	require.NoError(t, err)

	err = svc.Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrChatProvider)
}
