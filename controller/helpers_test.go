package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"praxischat/model"
	"praxischat/model/modeltest"
	"praxischat/platform"
	"praxischat/service"
)

const testAPIKey = "test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	// firstDelay 只作用于第一次调用
	firstDelay time.Duration
}

func (g *stubGenerator) GenerateResponse(context.Context, []service.Turn) (string, error) {
	g.mu.Lock()
	g.calls++
	var delay time.Duration
	if g.calls == 1 {
		delay = g.firstDelay
	}
	reply, err := g.reply, g.err
	g.mu.Unlock()

	time.Sleep(delay)
	return reply, err
}

func (g *stubGenerator) set(reply string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reply, g.err = reply, err
}

type testEnv struct {
	router  *gin.Engine
	chat    *service.ChatService
	store   *model.Store
	hub     *service.Hub
	gen     *stubGenerator
	limiter *MemoryLimiter
	metrics *platform.Metrics
}

func newTestEnv(t *testing.T, mutate ...func(*platform.Config)) *testEnv {
	t.Helper()
	cfg := &platform.Config{
		APIKey:       testAPIKey,
		EnforceHTTPS: false,
		CORSOrigins:  []string{"http://localhost:3000"},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	logger := platform.NewDiscardLogger()
	metrics := platform.NewMetrics("praxischat")
	store := modeltest.NewStore(t)
	hub := service.NewHub(logger, metrics)
	gen := &stubGenerator{reply: "Hallo, wie kann ich helfen?"}
	limiter := NewMemoryLimiter()
	chat := service.NewChatService(store, hub, gen, logger, metrics)

	router, err := NewRouter(RouterDeps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Chat:    chat,
		Hub:     hub,
		Limiter: limiter,
	})
	require.NoError(t, err)

	return &testEnv{router: router, chat: chat, store: store, hub: hub, gen: gen, limiter: limiter, metrics: metrics}
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) authed(method, path string, body any) *httptest.ResponseRecorder {
	return e.do(method, path, body, map[string]string{apiKeyHeader: testAPIKey})
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.authed(http.MethodPost, "/api/chat/session", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Detail
}
