package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidRole     = errors.New("invalid message role")
)

// PersistenceError 数据库层错误，已回滚，调用方不会看到部分写入
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store 会话与消息的持久化，每个操作一个事务
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB 底层连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) CreateSession(ctx context.Context) (*ChatSession, error) {
	session := &ChatSession{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, &PersistenceError{Op: "create session", Err: err}
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	return findSession(s.db.WithContext(ctx), id)
}

func findSession(db *gorm.DB, id string) (*ChatSession, error) {
	var session ChatSession
	if err := db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &PersistenceError{Op: "get session", Err: err}
	}
	return &session, nil
}

// AppendMessage 校验会话存在后插入消息，content 去除首尾空白后不能为空
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	var msg *Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findSession(tx, sessionID); err != nil {
			return err
		}
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return ErrEmptyContent
		}
		m := &Message{
			MessageID: uuid.NewString(),
			SessionID: sessionID,
			Role:      role,
			Content:   trimmed,
			Timestamp: s.now(),
		}
		if err := tx.Create(m).Error; err != nil {
			return &PersistenceError{Op: "append message", Err: err}
		}
		msg = m
		return nil
	})
	if err != nil {
		var perr *PersistenceError
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrEmptyContent) || errors.As(err, &perr) {
			return nil, err
		}
		// commit 失败
		return nil, &PersistenceError{Op: "append message", Err: err}
	}
	return msg, nil
}

// ListMessages 按插入顺序返回完整历史
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	messages := []Message{}
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&messages).Error; err != nil {
		return nil, &PersistenceError{Op: "list messages", Err: err}
	}
	return messages, nil
}

// RecentWindow 返回最近 limit 条消息，按时间正序
func (s *Store) RecentWindow(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	messages := []Message{}
	if limit <= 0 {
		return messages, nil
	}
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, &PersistenceError{Op: "recent window", Err: err}
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// DeleteSessionsBefore 删除 cutoff 之前创建的会话及其消息，返回删除的会话数
func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&ChatSession{}).
			Where("created_at < ?", cutoff.UTC()).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("session_id IN ?", ids).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, &PersistenceError{Op: "delete sessions", Err: err}
	}
	return deleted, nil
}
