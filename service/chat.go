package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"praxischat/model"
	"praxischat/platform"
)

// ContextWindow 发送给模型的最近消息条数
const ContextWindow = 10

const (
	EnvelopeUserMessage      = "user_message"
	EnvelopeAssistantMessage = "assistant_message"
	EnvelopeError            = "error"
)

// Envelope WebSocket 下行消息
type Envelope struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// UpstreamError 模型调用失败；用户消息已保存，助手消息未创建
type UpstreamError struct {
	SessionID string
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("assistant unavailable for session %s: %v", e.SessionID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type ChatService struct {
	store   *model.Store
	hub     *Hub
	llm     Generator
	logger  *logrus.Logger
	metrics *platform.Metrics
}

func NewChatService(store *model.Store, hub *Hub, llm Generator, logger *logrus.Logger, metrics *platform.Metrics) *ChatService {
	return &ChatService{
		store:   store,
		hub:     hub,
		llm:     llm,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *ChatService) CreateSession(ctx context.Context) (*model.ChatSession, error) {
	session, err := s.store.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("session_id", session.ID).Info("Chat session created")
	return session, nil
}

func (s *ChatService) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

// History 会话存在时返回完整历史
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sessionID)
}

// Exchange 保存用户消息、请求模型、保存助手消息，两次提交之间不持有事务。
// 客户端中途断开不会取消模型调用和第二次提交。
func (s *ChatService) Exchange(ctx context.Context, sessionID, content string) (*model.Message, error) {
	log := s.logger.WithField("session_id", sessionID)

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	userMessage, err := s.store.AppendMessage(ctx, sessionID, model.RoleUser, content)
	if err != nil {
		log.WithError(err).Warn("Failed to persist user message")
		return nil, err
	}
	s.metrics.IncMessage(string(model.RoleUser))
	s.broadcast(sessionID, Envelope{Type: EnvelopeUserMessage, Message: userMessage})

	ctx = context.WithoutCancel(ctx)

	window, err := s.store.RecentWindow(ctx, sessionID, ContextWindow)
	if err != nil {
		log.WithError(err).Error("Failed to build conversation window")
		return nil, err
	}

	reply, err := s.llm.GenerateResponse(ctx, TurnsFromMessages(window))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyCompletion
	}
	if err != nil {
		s.metrics.IncLLMRequest("error")
		log.WithError(err).Error("Assistant response failed")
		return nil, &UpstreamError{SessionID: sessionID, Err: err}
	}
	s.metrics.IncLLMRequest("ok")

	assistantMessage, err := s.store.AppendMessage(ctx, sessionID, model.RoleAssistant, reply)
	if err != nil {
		log.WithError(err).Error("Failed to persist assistant message")
		return nil, err
	}
	s.metrics.IncMessage(string(model.RoleAssistant))
	s.broadcast(sessionID, Envelope{Type: EnvelopeAssistantMessage, Message: assistantMessage})

	return assistantMessage, nil
}

func (s *ChatService) broadcast(sessionID string, envelope Envelope) {
	if err := s.hub.Broadcast(sessionID, envelope); err != nil {
		s.logger.WithField("session_id", sessionID).WithError(err).Error("Broadcast failed")
	}
}
