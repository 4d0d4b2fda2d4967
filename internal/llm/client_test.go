package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "local-model", req.Model)
		require.Equal(t, 0.3, req.Temperature)
		require.Equal(t, 300, req.MaxTokens)
		require.False(t, req.Stream)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)
		require.Contains(t, req.Messages[0].Content, "Priya")

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Hi Priya, thanks for connecting!  "}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Model: "local-model", Temperature: 0.3, MaxTokens: 300, Timeout: 5 * time.Second})
	text, err := c.Complete(context.Background(), "Write a short note to Priya.")
	require.NoError(t, err)
	require.Equal(t, "Hi Priya, thanks for connecting!", text)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	text, err := c.Complete(context.Background(), "anything")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestCompleteWhitespaceOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   \n  "}}]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	text, err := c.Complete(context.Background(), "anything")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Complete(context.Background(), "anything")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}

func TestCompleteContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Complete(ctx, "anything")
	require.Error(t, err)
}
