package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhpenta/detailsmatter"
)

func newTestServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, http.StatusOK, `{
		"id": "1",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "the director speaks"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
	}`, &seen)

	client, err := New(&detailsmatter.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "direct the scene", &detailsmatter.CompleteOptions{
		MaxTokens:   500,
		Temperature: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "the director speaks", text)

	assert.Equal(t, DefaultModel, seen["model"])
	assert.EqualValues(t, 500, seen["max_tokens"])
	messages := seen["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "direct the scene", messages[0].(map[string]any)["content"])
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "1", "choices": []}`, nil)

	client, err := New(&detailsmatter.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestComplete_RateLimited(t *testing.T) {
	srv := newTestServer(t, http.StatusTooManyRequests, `{"error": {"message": "slow down", "code": 429}}`, nil)

	client, err := New(&detailsmatter.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello", nil)
	assert.True(t, detailsmatter.IsRateLimitError(err), "got %v", err)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(&detailsmatter.ProviderConfig{})
	assert.ErrorIs(t, err, detailsmatter.ErrProviderNotConfigured)
}
