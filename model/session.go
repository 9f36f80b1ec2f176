package model

import "time"

// ChatSession 一次对话，删除时级联删除其消息
type ChatSession struct {
	ID        string    `gorm:"primaryKey;size:36;column:id" json:"session_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`
	Messages  []Message `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
