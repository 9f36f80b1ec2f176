package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praxischat/model"
	"praxischat/platform"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.authed(http.MethodPost, "/api/chat/session", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.SessionID, 36)
	assert.WithinDuration(t, time.Now(), resp.CreatedAt, time.Minute)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"missing", nil},
		{"wrong", map[string]string{apiKeyHeader: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/chat/session", nil, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, detailInvalidAPIKey, detailOf(t, w))
		})
	}

	w := env.do(http.MethodGet, "/api/chat/history/00000000-0000-0000-0000-000000000000?api_key="+testAPIKey, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.createSession(t)

	w := env.authed(http.MethodGet, "/api/chat/history/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var empty HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, sessionID, empty.SessionID)
	assert.NotNil(t, empty.Messages)
	assert.Empty(t, empty.Messages)
	assert.Contains(t, w.Body.String(), `"messages":[]`)

	w = env.authed(http.MethodPost, "/api/chat/message", gin.H{"session_id": sessionID, "content": "Guten Tag"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.authed(http.MethodGet, "/api/chat/history/"+strings.ToUpper(sessionID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var full HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &full))
	require.Len(t, full.Messages, 2)
	assert.Equal(t, model.RoleUser, full.Messages[0].Role)
	assert.Equal(t, "Guten Tag", full.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, full.Messages[1].Role)
	assert.Equal(t, "Hallo, wie kann ich helfen?", full.Messages[1].Content)
}

func TestHistoryErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.authed(http.MethodGet, "/api/chat/history/11111111-2222-3333-4444-555555555555", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, detailSessionNotFound, detailOf(t, w))

	w = env.authed(http.MethodGet, "/api/chat/history/not-a-uuid", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.createSession(t)

	w := env.authed(http.MethodPost, "/api/chat/message", gin.H{"session_id": sessionID, "content": "  Guten Tag  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Equal(t, sessionID, reply.SessionID)
	assert.Equal(t, "Hallo, wie kann ich helfen?", reply.Content)
	assert.NotEmpty(t, reply.MessageID)
	assert.NotContains(t, w.Body.String(), "seq")
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.createSession(t)

	tests := []struct {
		name string
		body any
	}{
		{"not json", "{"},
		{"missing content", gin.H{"session_id": sessionID}},
		{"empty content", gin.H{"session_id": sessionID, "content": ""}},
		{"blank content", gin.H{"session_id": sessionID, "content": "   "}},
		{"too long", gin.H{"session_id": sessionID, "content": strings.Repeat("ä", 2001)}},
		{"bad session id", gin.H{"session_id": "abc", "content": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.authed(http.MethodPost, "/api/chat/message", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		})
	}

	w := env.authed(http.MethodPost, "/api/chat/message", gin.H{"session_id": sessionID, "content": strings.Repeat("ä", 2000)})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.gen.calls)
}

func TestSendMessageLimitAppliesToTrimmedContent(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.createSession(t)

	padded := "  \n" + strings.Repeat("ä", MaxContentLength) + "\t  "
	w := env.authed(http.MethodPost, "/api/chat/message", gin.H{"session_id": sessionID, "content": padded})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	messages, err := env.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, strings.Repeat("ä", MaxContentLength), messages[0].Content)
}

func TestSendMessageUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.authed(http.MethodPost, "/api/chat/message", gin.H{
		"session_id": "11111111-2222-3333-4444-555555555555",
		"content":    "Hallo",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, detailSessionNotFound, detailOf(t, w))
	assert.Zero(t, env.gen.calls)
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.createSession(t)
	env.gen.set("", errors.New("provider down"))

	w := env.authed(http.MethodPost, "/api/chat/message", gin.H{"session_id": sessionID, "content": "Hallo"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, detailUpstream, detailOf(t, w))

	messages, err := env.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := newTestEnv(t, func(c *platform.Config) { c.EnforceHTTPS = true })

	w := env.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "praxischat_http_requests_total")
}

func TestEnforceHTTPS(t *testing.T) {
	env := newTestEnv(t, func(c *platform.Config) { c.EnforceHTTPS = true })

	w := env.authed(http.MethodPost, "/api/chat/session", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, detailHTTPSRequired, detailOf(t, w))

	w = env.do(http.MethodPost, "/api/chat/session", nil, map[string]string{
		apiKeyHeader:        testAPIKey,
		"X-Forwarded-Proto": "https, http",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/api/chat/session", nil, map[string]string{
		apiKeyHeader:        testAPIKey,
		"X-Forwarded-Proto": "http",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEnforceHTTPSExemptsLoopback(t *testing.T) {
	env := newTestEnv(t, func(c *platform.Config) { c.EnforceHTTPS = true })

	req := httptest.NewRequest(http.MethodPost, "/api/chat/session", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, cspDefault, w.Header().Get("Content-Security-Policy"))

	w = env.do(http.MethodGet, "/docs", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, cspDocs, w.Header().Get("Content-Security-Policy"))
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodOptions, "/api/chat/session", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = env.do(http.MethodOptions, "/api/chat/session", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
