package messaging

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/gorm"
)

// DirectKey is the canonical lookup key for a two-party conversation: both
// user ids, lexically sorted, so (a, b) and (b, a) map to the same key. The
// unique index over this column is what keeps concurrent creators from
// producing two conversations for one pair.
func DirectKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// CreateConversation inserts the conversation and one participant row per
// member in a single transaction, so a conversation is never observable
// without its participants. Duplicate member ids collapse to one row.
func CreateConversation(db *gorm.DB, convType string, memberIDs []uuid.UUID, name, avatar *string) (*models.Conversation, error) {
	members := make([]uuid.UUID, 0, len(memberIDs))
	seen := make(map[uuid.UUID]bool, len(memberIDs))
	for _, id := range memberIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	if len(members) == 0 {
		return nil, fmt.Errorf("%w: participant list is empty", ErrInvalidArgument)
	}
	if convType == models.ConversationTypeDirect && len(members) != 2 {
		return nil, fmt.Errorf("%w: a direct conversation needs exactly two participants", ErrInvalidArgument)
	}

	conversation := models.Conversation{
		Type:           convType,
		Name:           name,
		Avatar:         avatar,
		LastActivityAt: time.Now(),
	}
	if convType == models.ConversationTypeDirect {
		key := DirectKey(members[0], members[1])
		conversation.DirectKey = &key
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		for _, userID := range members {
			participant := models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         userID,
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindDirectConversation returns the direct conversation between the two
// users, or nil when none exists yet.
func FindDirectConversation(db *gorm.DB, userA, userB uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.
		Where("type = ? AND direct_key = ?", models.ConversationTypeDirect, DirectKey(userA, userB)).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// UserConversation pairs a conversation with the caller's own participant row,
// which carries their personal unread counter.
type UserConversation struct {
	Conversation models.Conversation
	Participant  models.ConversationParticipant
}

func ListConversationsForUser(db *gorm.DB, userID uuid.UUID) ([]UserConversation, error) {
	var conversations []models.Conversation
	err := db.
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID).
		Preload("Participants.User").
		Order("conversations.last_activity_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	result := make([]UserConversation, 0, len(conversations))
	for _, conversation := range conversations {
		entry := UserConversation{Conversation: conversation}
		for _, participant := range conversation.Participants {
			if participant.UserID == userID {
				entry.Participant = participant
				break
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// TouchActivity bumps the conversation's sort key for "list my conversations".
func TouchActivity(db *gorm.DB, conversationID uuid.UUID) error {
	return db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_activity_at", time.Now()).Error
}

// IsParticipant reports whether the user currently has a participant row on
// the conversation.
func IsParticipant(db *gorm.DB, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequireParticipant distinguishes "no such conversation" from "not yours":
// ErrNotFound when the conversation id does not resolve, ErrNotParticipant
// when it does but the user has no row on it.
func RequireParticipant(db *gorm.DB, conversationID, userID uuid.UUID) error {
	ok, err := IsParticipant(db, conversationID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	var count int64
	err = db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrNotParticipant
}
