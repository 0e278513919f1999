package models

import "time"

// Message is one immutable chat line. Timestamp is assigned by the server
// when the row is written.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChatID    uint      `gorm:"not null;index:idx_message_chat_timestamp,priority:1" json:"chat_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"-"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"not null;index:idx_message_chat_timestamp,priority:2" json:"timestamp"`
}

// MessageResponse is the REST shape of a message
type MessageResponse struct {
	ID        uint        `json:"id"`
	Content   string      `json:"content"`
	Sender    UserSummary `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
}

func (m *Message) Response() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.Sender.Summary(),
		Timestamp: m.Timestamp,
	}
}
