package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MessageTypeText   = "text"
	MessageTypeRich   = "rich"
	MessageTypeSystem = "system"
)

type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_conversation_created;uniqueIndex:idx_messages_send_nonce" json:"conversation_id"`
	SenderID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_messages_send_nonce" json:"sender_id"`
	Type           string         `gorm:"size:10;not null;default:'text'" json:"type"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`

	// Optional retry key supplied by the client. A resent message with the same
	// nonce maps onto the row created by the first attempt.
	ClientNonce *string `gorm:"size:64;uniqueIndex:idx_messages_send_nonce" json:"client_nonce,omitempty"`

	Sender User `gorm:"foreignkey:SenderID" json:"sender,omitempty"`

	CreatedAt time.Time  `gorm:"index:idx_messages_conversation_created" json:"created_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type MessageRead struct {
	MessageID uuid.UUID `gorm:"type:uuid;primary_key" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}
