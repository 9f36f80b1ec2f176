package controller

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_uuid "github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"praxischat/platform"
)

const (
	cspDefault = "default-src 'self'"
	cspDocs    = "default-src 'self'; " +
		"img-src 'self' data:; " +
		"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
		"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
		"font-src 'self' data: https://cdn.jsdelivr.net"
)

var docsPrefixes = []string{"/docs", "/redoc", "/openapi.json", "/swagger-ui"}

// abortDetail 所有 HTTP 错误统一返回 {"detail": "..."}
func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// CORSMiddleware ...
// 只回显白名单内的 Origin，"*" 放行全部
func CORSMiddleware(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && originAllowed(origins, origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Origin, Accept, X-API-Key, X-Request-Id")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origins []string, origin string) bool {
	for _, o := range origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":    status,
			"latency":   latency,
			"client_ip": c.ClientIP(),
			"method":    c.Request.Method,
			"path":      path,
		})
		msg := "[" + c.GetString("requestId") + "] request handled"
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}

// MetricsMiddleware 按路由模板记录请求数与耗时
func MetricsMiddleware(metrics *platform.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// SecurityHeadersMiddleware 在每个响应上设置安全头
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		if isDocsPath(c.Request.URL.Path) {
			h.Set("Content-Security-Policy", cspDocs)
		} else {
			h.Set("Content-Security-Policy", cspDefault)
		}
		c.Next()
	}
}

func isDocsPath(path string) bool {
	for _, prefix := range docsPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// EnforceHTTPSMiddleware 拒绝非 https 请求，本机直连除外
func EnforceHTTPSMiddleware(enabled bool, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || isLoopback(c.RemoteIP()) {
			c.Next()
			return
		}
		if requestScheme(c.Request) != "https" {
			logger.Warnf("[%s] Rejected insecure request from %s", c.GetString("requestId"), c.RemoteIP())
			abortDetail(c, http.StatusForbidden, detailHTTPSRequired)
			return
		}
		c.Next()
	}
}

// requestScheme X-Forwarded-Proto 的第一个值优先
func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.ToLower(strings.TrimSpace(first))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
