package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req imageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dall-e-3", req.Model)
		assert.Equal(t, "1024x1792", req.Size)
		assert.Equal(t, 1, req.N)
		_, _ = w.Write([]byte(`{"data":[{"url":"https://oai.cdn/img.png","revised_prompt":"a cat"}]}`))
	})

	asset, err := client.Invoke(context.Background(), provider.Payload{
		Kind: models.KindImage, Model: "dall-e-3", Prompt: "a cat", Size: "1024x1792",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://oai.cdn/img.png", asset.URL)
}

func TestGenerateImageEmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	_, err := client.Invoke(context.Background(), provider.Payload{Kind: models.KindImage, Model: "dall-e-2", Prompt: "x"})
	var perr *provider.Error
	assert.True(t, errors.As(err, &perr))
}

func TestChatFromPrompt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, []provider.Message{{Role: "user", Content: "slogan for coffee"}}, req.Messages)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Wake up to wonder."},"finish_reason":"stop"}]}`))
	})

	asset, err := client.Invoke(context.Background(), provider.Payload{Kind: models.KindChat, Model: "gpt-4o-mini", Prompt: "slogan for coffee"})
	require.NoError(t, err)
	assert.Equal(t, "Wake up to wonder.", asset.Text)
}

func TestChatSendsPromptAsFinalTurn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []provider.Message{
			{Role: "system", Content: "You write ad copy."},
			{Role: "user", Content: "coffee tagline"},
			{Role: "user", Content: "make it rhyme"},
		}, req.Messages)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Brew anew."},"finish_reason":"stop"}]}`))
	})

	asset, err := client.Invoke(context.Background(), provider.Payload{
		Kind:   models.KindChat,
		Model:  "gpt-4o-mini",
		Prompt: "make it rhyme",
		Messages: []provider.Message{
			{Role: "system", Content: "You write ad copy."},
			{Role: "user", Content: "coffee tagline"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Brew anew.", asset.Text)
}

func TestChatRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	})
	_, err := client.Invoke(context.Background(), provider.Payload{Kind: models.KindChat, Model: "gpt-4o", Prompt: "hi"})
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.True(t, perr.Retryable)
}

func TestUnsupportedKind(t *testing.T) {
	client := NewClient(config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := client.Invoke(context.Background(), provider.Payload{Kind: models.KindVideo})
	assert.Error(t, err)
}
