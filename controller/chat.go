package controller

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"praxischat/model"
	"praxischat/service"
)

const (
	detailSessionNotFound = "Sitzung nicht gefunden."
	detailUpstream        = "Antwort des Assistenten derzeit nicht verfügbar."
	detailInvalidAPIKey   = "Invalid API key."
	detailHTTPSRequired   = "HTTPS is required for this endpoint."
	detailRateLimited     = "Rate limit exceeded. Bitte versuchen Sie es später erneut."
	detailInvalidMessage  = "Ungültige Nachricht."
	detailInvalidSession  = "Ungültige Sitzungs-ID."
	detailInternal        = "Interner Serverfehler."
)

// MaxContentLength 单条消息最大字符数
const MaxContentLength = 2000

type SessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

type messageRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	Content   string `json:"content" binding:"required"`
}

type ChatController struct {
	chat   *service.ChatService
	logger *logrus.Logger
}

func NewChatController(chat *service.ChatService, logger *logrus.Logger) *ChatController {
	return &ChatController{chat: chat, logger: logger}
}

func (ch *ChatController) CreateSession(c *gin.Context) {
	session, err := ch.chat.CreateSession(c.Request.Context())
	if err != nil {
		ch.fail(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{SessionID: session.ID, CreatedAt: session.CreatedAt})
}

func (ch *ChatController) History(c *gin.Context) {
	sessionID, ok := parseSessionID(c.Param("session_id"))
	if !ok {
		abortDetail(c, http.StatusUnprocessableEntity, detailInvalidSession)
		return
	}

	messages, err := ch.chat.History(c.Request.Context(), sessionID)
	if err != nil {
		ch.fail(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: messages})
}

func (ch *ChatController) SendMessage(c *gin.Context) {
	var input messageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		ch.logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		abortDetail(c, http.StatusUnprocessableEntity, detailInvalidMessage)
		return
	}
	sessionID, ok := parseSessionID(input.SessionID)
	if !ok {
		abortDetail(c, http.StatusUnprocessableEntity, detailInvalidSession)
		return
	}
	content, ok := normalizeContent(input.Content)
	if !ok {
		abortDetail(c, http.StatusUnprocessableEntity, detailInvalidMessage)
		return
	}

	reply, err := ch.chat.Exchange(c.Request.Context(), sessionID, content)
	if err != nil {
		ch.fail(c, sessionID, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (ch *ChatController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail 按错误类型映射状态码
func (ch *ChatController) fail(c *gin.Context, sessionID string, err error) {
	status, detail := errorStatus(err)
	entry := ch.logger.WithFields(logrus.Fields{"session_id": sessionID, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Errorf("[%s] Request failed, %s", c.GetString("requestId"), err)
	} else {
		entry.Warnf("[%s] Request rejected, %s", c.GetString("requestId"), err)
	}
	abortDetail(c, status, detail)
}

func errorStatus(err error) (int, string) {
	var upstream *service.UpstreamError
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, detailSessionNotFound
	case errors.Is(err, model.ErrEmptyContent):
		return http.StatusUnprocessableEntity, detailInvalidMessage
	case errors.As(err, &upstream):
		return http.StatusBadGateway, detailUpstream
	default:
		return http.StatusInternalServerError, detailInternal
	}
}

// parseSessionID 接受任意合法 UUID 写法，返回规范小写形式
func parseSessionID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// normalizeContent 去掉首尾空白后按字符数校验，HTTP 与 WebSocket 共用
func normalizeContent(raw string) (string, bool) {
	content := strings.TrimSpace(raw)
	if content == "" || utf8.RuneCountInString(content) > MaxContentLength {
		return "", false
	}
	return content, true
}
