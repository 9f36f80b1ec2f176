package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"praxischat/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 16 * 1024
	sendBuffer     = 32
)

var (
	errClientClosed = errors.New("websocket client closed")
	errSlowClient   = errors.New("websocket client send buffer full")
)

// wsClient 一个 WebSocket 连接，写操作全部由 writePump 完成
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send 入队后立即返回；缓冲区满视为慢连接
func (c *wsClient) Send(data []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.close()
		return errSlowClient
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsClient) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

type inboundMessage struct {
	Content *string `json:"content"`
}

type WSController struct {
	chat     *service.ChatService
	hub      *service.Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	// pongWait 读超时；pingPeriod 必须小于 pongWait
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewWSController(chat *service.ChatService, hub *service.Hub, origins []string, logger *logrus.Logger) *WSController {
	return &WSController{
		chat:       chat,
		hub:        hub,
		logger:     logger,
		pongWait:   pongWait,
		pingPeriod: pongWait * 9 / 10,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origins, origin)
			},
		},
	}
}

// Stream 握手前完成会话检查，失败时返回普通 HTTP 错误
func (ws *WSController) Stream(c *gin.Context) {
	sessionID, ok := parseSessionID(c.Param("session_id"))
	if !ok {
		abortDetail(c, http.StatusUnprocessableEntity, detailInvalidSession)
		return
	}
	if _, err := ws.chat.GetSession(c.Request.Context(), sessionID); err != nil {
		status, detail := errorStatus(err)
		ws.logger.WithField("session_id", sessionID).Warnf("[%s] WebSocket rejected, %s", c.GetString("requestId"), err)
		abortDetail(c, status, detail)
		return
	}

	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ws.logger.WithField("session_id", sessionID).Warnf("[%s] WebSocket upgrade failed, %s", c.GetString("requestId"), err)
		return
	}

	client := newWSClient(conn)
	ws.hub.Connect(sessionID, client)
	defer func() {
		ws.hub.Disconnect(sessionID, client)
		client.close()
	}()
	go client.writePump(ws.pingPeriod)

	ws.readLoop(c, sessionID, client)
}

func (ws *WSController) readLoop(c *gin.Context, sessionID string, client *wsClient) {
	log := ws.logger.WithField("session_id", sessionID)
	conn := client.conn

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.pongWait))
	})

	for {
		// Exchange 期间 pong 不会被读取，每次读之前重新计时
		_ = conn.SetReadDeadline(time.Now().Add(ws.pongWait))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warnf("WebSocket closed unexpectedly, %s", err)
			}
			return
		}

		content, ok := parseInbound(kind, data)
		if !ok {
			ws.reply(client, detailInvalidMessage)
			continue
		}

		if _, err := ws.chat.Exchange(c.Request.Context(), sessionID, content); err != nil {
			_, detail := errorStatus(err)
			log.Warnf("WebSocket exchange failed, %s", err)
			ws.reply(client, detail)
		}
	}
}

func parseInbound(kind int, data []byte) (string, bool) {
	if kind != websocket.TextMessage {
		return "", false
	}
	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil || in.Content == nil {
		return "", false
	}
	return normalizeContent(*in.Content)
}

// reply 只发给当前连接
func (ws *WSController) reply(client *wsClient, detail string) {
	data, err := json.Marshal(service.Envelope{Type: service.EnvelopeError, Error: detail})
	if err != nil {
		return
	}
	_ = client.Send(data)
}

var _ service.Client = (*wsClient)(nil)
