package controller

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	apiKeyHeader = "X-API-Key"
	apiKeyQuery  = "api_key"
)

// AuthController 共享 API key 校验
type AuthController struct {
	apiKey []byte
	logger *logrus.Logger
}

func NewAuthController(apiKey string, logger *logrus.Logger) *AuthController {
	return &AuthController{apiKey: []byte(apiKey), logger: logger}
}

// TokenValid ...
// HTTP 接口只接受请求头
func (a *AuthController) TokenValid(c *gin.Context) {
	a.check(c, c.GetHeader(apiKeyHeader))
}

// SocketTokenValid 浏览器无法给 WebSocket 握手加请求头，允许 query 参数
func (a *AuthController) SocketTokenValid(c *gin.Context) {
	key := c.GetHeader(apiKeyHeader)
	if key == "" {
		key = c.Query(apiKeyQuery)
	}
	a.check(c, key)
}

func (a *AuthController) check(c *gin.Context, key string) {
	if !a.valid(key) {
		a.logger.Warnf("[%s] Invalid API key from %s", c.GetString("requestId"), c.ClientIP())
		abortDetail(c, http.StatusUnauthorized, detailInvalidAPIKey)
		return
	}
	c.Next()
}

func (a *AuthController) valid(key string) bool {
	if key == "" || len(a.apiKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
}
