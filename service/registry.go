package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"praxischat/platform"
)

// Client 已建立的连接，Send 不阻塞，失败即视为断开
type Client interface {
	Send(data []byte) error
}

// Hub 按会话登记在线连接并广播，仅在本进程内有效
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[Client]struct{}
	total    int

	logger  *logrus.Logger
	metrics *platform.Metrics
}

func NewHub(logger *logrus.Logger, metrics *platform.Metrics) *Hub {
	return &Hub{
		sessions: make(map[string]map[Client]struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

func (h *Hub) Connect(sessionID string, c Client) {
	h.mu.Lock()
	clients, ok := h.sessions[sessionID]
	if !ok {
		clients = make(map[Client]struct{})
		h.sessions[sessionID] = clients
	}
	if _, exists := clients[c]; !exists {
		clients[c] = struct{}{}
		h.total++
	}
	total := h.total
	h.mu.Unlock()

	h.metrics.SetConnections(total)
	h.logger.WithField("session_id", sessionID).Debug("WebSocket connected")
}

func (h *Hub) Disconnect(sessionID string, c Client) {
	h.mu.Lock()
	clients, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; exists {
		delete(clients, c)
		h.total--
	}
	if len(clients) == 0 {
		delete(h.sessions, sessionID)
	}
	total := h.total
	h.mu.Unlock()

	h.metrics.SetConnections(total)
	h.logger.WithField("session_id", sessionID).Debug("WebSocket disconnected")
}

// Broadcast 序列化一次后发给该会话的所有连接；单个连接失败只移除该连接
func (h *Hub) Broadcast(sessionID string, payload any) error {
	h.mu.RLock()
	clients := h.sessions[sessionID]
	snapshot := make([]Client, 0, len(clients))
	for c := range clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast payload: %w", err)
	}

	for _, c := range snapshot {
		if err := c.Send(data); err != nil {
			h.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"error":      err,
			}).Warn("Failed to broadcast, dropping connection")
			h.Disconnect(sessionID, c)
		}
	}
	return nil
}

// Count 某会话的在线连接数
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Total 全部在线连接数
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Sessions 有在线连接的会话数
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
