package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ConversationTypeDirect = "direct"
	ConversationTypeGroup  = "group"
)

type Conversation struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Type string    `gorm:"size:10;not null" json:"type"`

	// Display overrides, set for group conversations. Direct conversations
	// resolve name/avatar from the other participant at read time.
	Name   *string `gorm:"size:255" json:"name,omitempty"`
	Avatar *string `gorm:"size:255" json:"avatar,omitempty"`

	// Sorted "userA:userB" pair, set only for direct conversations. The unique
	// index is what makes concurrent get-or-create safe.
	DirectKey *string `gorm:"size:80;uniqueIndex:idx_conversations_direct_key" json:"-"`

	LastActivityAt time.Time `gorm:"not null;index" json:"last_activity_at"`

	Participants []ConversationParticipant `gorm:"foreignkey:ConversationID" json:"participants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type ConversationParticipant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primary_key" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primary_key;index" json:"user_id"`

	// Owned by the read tracker, never written directly by anything else.
	UnreadCount int64 `gorm:"not null;default:0" json:"unread_count"`

	User User `gorm:"foreignkey:UserID" json:"user,omitempty"`

	CreatedAt time.Time `json:"joined_at"`
}
