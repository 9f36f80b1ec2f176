package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praxischat/model"
	"praxischat/platform"
)

type completionRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"logprobs":      nil,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
				"refusal": nil,
			},
		}},
	})
	return string(body)
}

func newFakeLLM(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, *completionRequest) {
	t.Helper()
	var hits atomic.Int32
	captured := &completionRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, captured)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, captured
}

func newTestAssistant(baseURL string) *Assistant {
	cfg := &platform.Config{OpenAIAPIKey: "sk-test", OpenAIBaseURL: baseURL + "/"}
	client := platform.NewLLMClient(cfg, option.WithHeader("X-Test", "1"))
	return NewAssistant(client, AssistantOptions{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   500,
	}, platform.NewDiscardLogger())
}

func TestAssistantPrependsSystemPrompt(t *testing.T) {
	srv, hits, captured := newFakeLLM(t, http.StatusOK, completionBody("Hallo, wie kann ich helfen?"))
	assistant := newTestAssistant(srv.URL)

	reply, err := assistant.GenerateResponse(context.Background(), []Turn{
		{Role: model.RoleUser, Content: "Guten Tag"},
		{Role: model.RoleAssistant, Content: "Hallo!"},
		{Role: model.RoleUser, Content: "Wann haben Sie offen?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hallo, wie kann ich helfen?", reply)
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.InDelta(t, 0.3, captured.Temperature, 1e-9)
	assert.Equal(t, int64(500), captured.MaxTokens)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, SystemPrompt, captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "Guten Tag", captured.Messages[1].Content)
	assert.Equal(t, "assistant", captured.Messages[2].Role)
	assert.Equal(t, "user", captured.Messages[3].Role)
}

func TestAssistantRejectsEmptyContent(t *testing.T) {
	srv, _, _ := newFakeLLM(t, http.StatusOK, completionBody("   "))
	assistant := newTestAssistant(srv.URL)

	_, err := assistant.GenerateResponse(context.Background(), []Turn{{Role: model.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestAssistantRejectsMissingChoices(t *testing.T) {
	srv, _, _ := newFakeLLM(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`)
	assistant := newTestAssistant(srv.URL)

	_, err := assistant.GenerateResponse(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestAssistantSurfacesRateLimitWithoutRetry(t *testing.T) {
	srv, hits, _ := newFakeLLM(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	assistant := newTestAssistant(srv.URL)

	_, err := assistant.GenerateResponse(context.Background(), []Turn{{Role: model.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestAssistantSurfacesServerError(t *testing.T) {
	srv, hits, _ := newFakeLLM(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`)
	assistant := newTestAssistant(srv.URL)

	_, err := assistant.GenerateResponse(context.Background(), []Turn{{Role: model.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestTurnsFromMessagesKeepsOrder(t *testing.T) {
	turns := TurnsFromMessages([]model.Message{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
	})
	assert.Equal(t, []Turn{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
	}, turns)
}
