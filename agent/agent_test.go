package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	id, _ := msg["id"].(string)
	assert.True(t, strings.HasPrefix(id, "msg_"))
	assert.Equal(t, "user", msg.Role())
	assert.NotEmpty(t, msg["createdAt"])

	parts, ok := msg["parts"].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	part, ok := parts[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "text", part["type"])
	assert.Equal(t, "hello", part["text"])
}

func TestNewUserMessageUniqueIDs(t *testing.T) {
	a := NewUserMessage("x")
	b := NewUserMessage("x")
	assert.NotEqual(t, a["id"], b["id"])
}

func TestSendPrompt(t *testing.T) {
	t.Run("First turn", func(t *testing.T) {
		var captured map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, testRunPath, r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, sonic.Unmarshal(body, &captured))

			w.Write([]byte(`{
				"finalText": "There are 42 orders.",
				"totalTokens": {"total": 1234},
				"messages": [
					{"role": "assistant", "parts": [{"type": "text", "text": "There are 42 orders."}]},
					{"role": "tool", "toolName": "run_sql"}
				]
			}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL)
		finalText, tokens, history, err := client.SendPrompt(context.Background(), "How many orders?", nil)
		require.NoError(t, err)

		assert.Equal(t, "There are 42 orders.", finalText)
		assert.Equal(t, 1234, tokens)

		// Sent payload holds exactly the one user message.
		sent, ok := captured["messages"].([]any)
		require.True(t, ok)
		require.Len(t, sent, 1)

		// History keeps the user turn plus the assistant reply; the tool
		// message is filtered out.
		require.Len(t, history, 2)
		assert.Equal(t, "user", history[0].Role())
		assert.Equal(t, "assistant", history[1].Role())
	})

	t.Run("Second turn replays history", func(t *testing.T) {
		var captured map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, sonic.Unmarshal(body, &captured))
			w.Write([]byte(`{"finalText": "ok", "totalTokens": {"total": 10}, "messages": []}`))
		}))
		defer srv.Close()

		history := []Message{
			NewUserMessage("first question"),
			{"role": "assistant", "parts": []any{map[string]any{"type": "text", "text": "first answer"}}},
		}

		client := NewClient(srv.URL)
		_, _, newHistory, err := client.SendPrompt(context.Background(), "follow up", history)
		require.NoError(t, err)

		sent, ok := captured["messages"].([]any)
		require.True(t, ok)
		assert.Len(t, sent, 3)
		assert.Len(t, newHistory, 3)
	})

	t.Run("Missing token fields default to zero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"finalText": "reply"}`))
		}))
		defer srv.Close()

		finalText, tokens, _, err := NewClient(srv.URL).SendPrompt(context.Background(), "hi", nil)
		require.NoError(t, err)
		assert.Equal(t, "reply", finalText)
		assert.Zero(t, tokens)
	})

	t.Run("Server error with error field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error": "model provider unavailable"}`))
		}))
		defer srv.Close()

		_, _, _, err := NewClient(srv.URL).SendPrompt(context.Background(), "hi", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model provider unavailable")
	})

	t.Run("Server error without body falls back to status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, _, _, err := NewClient(srv.URL).SendPrompt(context.Background(), "hi", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("Connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		_, _, _, err := NewClient(srv.URL).SendPrompt(context.Background(), "hi", nil)
		require.Error(t, err)
	})

	t.Run("History slice is not mutated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"finalText": "ok", "messages": []}`))
		}))
		defer srv.Close()

		history := []Message{NewUserMessage("q1")}
		original := history[0]

		_, _, _, err := NewClient(srv.URL).SendPrompt(context.Background(), "q2", history)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, original, history[0])
	})
}
