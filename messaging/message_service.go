package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/database"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Send persists the message and applies its fan-out (activity bump for the
// conversation, unread increment for every other participant) in one
// transaction, so a send is acknowledged only with its side effects applied
// and a failed send leaves no trace. A retried send carrying the same client
// nonce returns the original message and applies the fan-out only once.
func Send(conversationID, senderID uuid.UUID, msgType, content string, metadata datatypes.JSON, clientNonce *string) (*models.Message, error) {
	var message *models.Message
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		appended, replayed, err := AppendMessage(tx, conversationID, senderID, msgType, content, metadata, clientNonce)
		if err != nil {
			return err
		}
		message = appended
		if replayed {
			return nil
		}
		if err := TouchActivity(tx, conversationID); err != nil {
			return err
		}
		return MarkDelivered(tx, conversationID, senderID)
	})
	if err != nil {
		// Two retries of the same send can race past the nonce pre-check;
		// the unique index catches the loser, whose answer is the stored row.
		if clientNonce != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := findMessageByNonce(database.DB, conversationID, senderID, *clientNonce)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return message, nil
}

// MessagePage is one keyset page of a conversation, oldest message first.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// FetchAndMarkRead returns a page of messages and, as a documented side
// effect of this read, records read receipts for every returned message
// authored by someone else and zeroes the caller's unread counter. Opening a
// conversation is defined to acknowledge everything on the page.
func FetchAndMarkRead(conversationID, callerID uuid.UUID, limit int, before *time.Time) (*MessagePage, error) {
	if err := RequireParticipant(database.DB, conversationID, callerID); err != nil {
		return nil, err
	}

	messages, hasMore, err := ListMessages(database.DB, conversationID, limit, before)
	if err != nil {
		return nil, err
	}

	foreign := make([]uuid.UUID, 0, len(messages))
	for _, message := range messages {
		if message.SenderID != callerID {
			foreign = append(foreign, message.ID)
		}
	}
	if err := MarkRead(database.DB, conversationID, callerID, foreign); err != nil {
		return nil, err
	}

	return &MessagePage{Messages: messages, HasMore: hasMore}, nil
}
