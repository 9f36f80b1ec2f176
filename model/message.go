package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message 会话中的一条消息，创建后不可变。
// Seq 为自增主键，保证同一时间戳下仍按插入顺序排序。
type Message struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement;column:seq" json:"-"`
	MessageID string    `gorm:"uniqueIndex:idx_messages_message_id;size:36;not null;column:message_id" json:"message_id"`
	SessionID string    `gorm:"index:idx_messages_session_id;size:36;not null;column:session_id" json:"session_id"`
	Role      Role      `gorm:"size:32;not null;column:role" json:"role"`
	Content   string    `gorm:"type:text;not null;column:content" json:"content"`
	Timestamp time.Time `gorm:"not null;column:timestamp" json:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}
