// Package agent is the HTTP client for the chat server's test endpoint.
// It drives a multi-turn conversation with the LLM-backed agent and keeps
// the replayable message history between turns.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/getnao/nao-cli/logger"
	"github.com/google/uuid"
	"github.com/life4/genesis/slices"
	"github.com/yalp/jsonpath"
)

const (
	testRunPath = "/api/test/run"
	// The agent call is bounded by model latency, not network latency.
	requestTimeout = 300 * time.Second
)

// Message is one conversation message in the chat server's wire format.
// It stays a raw map so fields this client does not model survive the
// round trip when history is replayed on the next turn.
type Message map[string]any

func (m Message) Role() string {
	role, _ := m["role"].(string)
	return role
}

// NewUserMessage builds the user message envelope for one prompt.
func NewUserMessage(text string) Message {
	return Message{
		"id":   "msg_" + uuid.NewString(),
		"role": "user",
		"parts": []any{
			map[string]any{"type": "text", "text": text},
		},
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
}

// Client talks to the agent's test-run endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Run posts the full message array to the agent and returns the decoded
// response body. Non-2xx responses become errors carrying the server's
// reported error text, falling back to the HTTP status line.
func (c *Client) Run(ctx context.Context, messages []Message) (map[string]any, error) {
	payload, err := sonic.Marshal(map[string]any{"messages": messages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+testRunPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := resp.Status
		var failure map[string]any
		if len(body) > 0 && sonic.Unmarshal(body, &failure) == nil {
			if msg, ok := failure["error"].(string); ok && msg != "" {
				detail = msg
			}
		}
		return nil, fmt.Errorf("agent request failed: %s", detail)
	}

	var result map[string]any
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("invalid agent response: %w", err)
	}
	return result, nil
}

// SendPrompt sends one conversational turn: prompt is appended to history
// (nil for the first turn) and the whole conversation is posted. It
// returns the agent's final text, the token count for the turn, and the
// updated history to pass into the next turn.
func (c *Client) SendPrompt(ctx context.Context, prompt string, history []Message) (string, int, []Message, error) {
	messages := append(append([]Message{}, history...), NewUserMessage(prompt))

	result, err := c.Run(ctx, messages)
	if err != nil {
		return "", 0, nil, err
	}

	finalText := stringAt(result, "$.finalText")
	tokens := intAt(result, "$.totalTokens.total")

	// Tool-invocation messages are not valid conversation context; only
	// user and assistant roles may be replayed on the next turn.
	filtered := slices.Filter(messagesAt(result, "$.messages"), func(m Message) bool {
		return m.Role() == "user" || m.Role() == "assistant"
	})

	logger.Logger.Debug("Agent turn complete",
		"tokens", tokens,
		"response_messages", len(filtered))

	fullHistory := append(messages, filtered...)
	return finalText, tokens, fullHistory, nil
}

func stringAt(data map[string]any, path string) string {
	v, err := jsonpath.Read(data, path)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intAt(data map[string]any, path string) int {
	v, err := jsonpath.Read(data, path)
	if err != nil {
		return 0
	}
	f, _ := v.(float64)
	return int(f)
}

func messagesAt(data map[string]any, path string) []Message {
	v, err := jsonpath.Read(data, path)
	if err != nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			msgs = append(msgs, Message(m))
		}
	}
	return msgs
}
