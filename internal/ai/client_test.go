package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return 0 }

func TestChat_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"winner":"alice"}`}},
			},
		})
	}))
	defer server.Close()

	c := NewChat("test-key", server.URL, "deepseek-chat")
	c.backoffFunc = noBackoff

	out, err := c.Complete(context.Background(), "judge this debate")
	require.NoError(t, err)
	assert.Equal(t, `{"winner":"alice"}`, out)
}

func TestChat_Complete_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer server.Close()

	c := NewChat("test-key", server.URL, "deepseek-chat")
	c.backoffFunc = noBackoff

	out, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}

func TestChat_Complete_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewChat("bad-key", server.URL, "deepseek-chat")
	c.backoffFunc = noBackoff

	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestChat_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := NewChat("test-key", server.URL, "deepseek-chat")
	c.backoffFunc = noBackoff

	_, err := c.Complete(context.Background(), "prompt")
	assert.ErrorContains(t, err, "empty completion")
}

func TestGemini_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash-lite:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "verdict text"}}}},
			},
		})
	}))
	defer server.Close()

	g := NewGemini("test-key", "gemini-2.5-flash-lite")
	g.baseURL = server.URL
	g.backoffFunc = noBackoff

	out, err := g.Complete(context.Background(), "judge this debate")
	require.NoError(t, err)
	assert.Equal(t, "verdict text", out)
}

func TestNew_ProviderSelection(t *testing.T) {
	c, err := New(ProviderGemini, "k", "gemini-2.5-flash-lite")
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, c)

	c, err = New(ProviderDeepSeek, "k", "deepseek-chat")
	require.NoError(t, err)
	assert.IsType(t, &Chat{}, c)

	_, err = New("oracle", "k", "m")
	assert.Error(t, err)
}
