package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"praxischat/platform"
	"praxischat/service"
)

// RouterDeps 路由需要的依赖，全部由 main 构造后注入
type RouterDeps struct {
	Config  *platform.Config
	Logger  *logrus.Logger
	Metrics *platform.Metrics
	Chat    *service.ChatService
	Hub     *service.Hub
	Limiter Limiter
}

func NewRouter(d RouterDeps) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(gin.Recovery())
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(d.Config.CORSOrigins))
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware(d.Logger))
	r.Use(MetricsMiddleware(d.Metrics))

	chat := NewChatController(d.Chat, d.Logger)
	ws := NewWSController(d.Chat, d.Hub, d.Config.CORSOrigins, d.Logger)
	auth := NewAuthController(d.Config.APIKey, d.Logger)
	limit := func(route string, n int) gin.HandlerFunc {
		return RateLimitMiddleware(d.Limiter, route, n, d.Logger)
	}

	r.GET("/health", chat.Health)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api/chat")
	api.Use(EnforceHTTPSMiddleware(d.Config.EnforceHTTPS, d.Logger))
	{
		api.POST("/session", auth.TokenValid, limit("session", LimitCreateSession), chat.CreateSession)
		api.GET("/history/:session_id", auth.TokenValid, limit("history", LimitDefault), chat.History)
		api.POST("/message", auth.TokenValid, limit("message", LimitDefault), chat.SendMessage)
		api.GET("/ws/:session_id", auth.SocketTokenValid, limit("ws", LimitDefault), ws.Stream)
	}

	return r, nil
}
