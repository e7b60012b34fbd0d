package messaging

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/database"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/gorm"
)

// GetOrCreateDirectConversation returns the direct conversation between the
// caller and the other user, creating it on first contact. isNew is true only
// when this call created the conversation. Two callers racing on first
// contact both land on the same row: the loser's insert trips the direct-key
// unique index and is answered by re-running the lookup, never by an error.
func GetOrCreateDirectConversation(callerID, otherUserID uuid.UUID) (*models.Conversation, bool, error) {
	if otherUserID == uuid.Nil || callerID == otherUserID {
		return nil, false, fmt.Errorf("%w: a direct conversation needs one other user", ErrInvalidArgument)
	}

	conversation, err := FindDirectConversation(database.DB, callerID, otherUserID)
	if err != nil {
		return nil, false, err
	}
	if conversation != nil {
		return conversation, false, nil
	}

	conversation, err = CreateConversation(database.DB, models.ConversationTypeDirect, []uuid.UUID{callerID, otherUserID}, nil, nil)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, findErr := FindDirectConversation(database.DB, callerID, otherUserID)
			if findErr != nil {
				return nil, false, findErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}
	return conversation, true, nil
}

// CreateGroupConversation creates a group conversation containing the caller
// and every id in memberIDs.
func CreateGroupConversation(callerID uuid.UUID, memberIDs []uuid.UUID, name, avatar *string) (*models.Conversation, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: participant list is empty", ErrInvalidArgument)
	}
	members := append([]uuid.UUID{callerID}, memberIDs...)
	return CreateConversation(database.DB, models.ConversationTypeGroup, members, name, avatar)
}

// ConversationSummary is one entry of "list my conversations": the
// conversation, the caller's unread counter, the newest message as a preview,
// and display name/avatar resolved from the other participant when the
// conversation carries no override.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	UnreadCount  int64               `json:"unread_count"`
	LastMessage  *models.Message     `json:"last_message,omitempty"`
	Name         string              `json:"name"`
	Avatar       *string             `json:"avatar,omitempty"`
}

func ListConversations(callerID uuid.UUID) ([]ConversationSummary, error) {
	entries, err := ListConversationsForUser(database.DB, callerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(entries))
	for _, entry := range entries {
		summary := ConversationSummary{
			Conversation: entry.Conversation,
			UnreadCount:  entry.Participant.UnreadCount,
		}

		if entry.Conversation.Name != nil {
			summary.Name = *entry.Conversation.Name
			summary.Avatar = entry.Conversation.Avatar
		} else {
			for _, participant := range entry.Conversation.Participants {
				if participant.UserID != callerID {
					summary.Name = participant.User.FullName
					summary.Avatar = participant.User.ProfilePictureURL
					break
				}
			}
		}

		var preview models.Message
		err := database.DB.
			Where("conversation_id = ? AND deleted_at IS NULL", entry.Conversation.ID).
			Order("created_at DESC, id DESC").
			First(&preview).Error
		if err == nil {
			summary.LastMessage = &preview
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}
