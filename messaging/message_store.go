package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultPageSize = 50

// AppendMessage inserts a new message after confirming the sender is a
// current participant. When clientNonce is set and a message with the same
// (conversation, sender, nonce) already exists, the stored row is returned
// with replayed = true instead of creating a duplicate.
func AppendMessage(db *gorm.DB, conversationID, senderID uuid.UUID, msgType, content string, metadata datatypes.JSON, clientNonce *string) (*models.Message, bool, error) {
	if err := RequireParticipant(db, conversationID, senderID); err != nil {
		return nil, false, err
	}

	if clientNonce != nil {
		existing, err := findMessageByNonce(db, conversationID, senderID, *clientNonce)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	if msgType == "" {
		msgType = models.MessageTypeText
	}
	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        content,
		Metadata:       metadata,
		ClientNonce:    clientNonce,
		CreatedAt:      time.Now(),
	}
	if err := db.Create(&message).Error; err != nil {
		return nil, false, err
	}
	return &message, false, nil
}

func findMessageByNonce(db *gorm.DB, conversationID, senderID uuid.UUID, nonce string) (*models.Message, error) {
	var message models.Message
	err := db.
		Where("conversation_id = ? AND sender_id = ? AND client_nonce = ?", conversationID, senderID, nonce).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListMessages returns up to limit non-deleted messages older than before
// (all, when before is nil). The page is scanned newest-first so the keyset
// cursor works, then reversed so callers render oldest-first. hasMore is the
// page-exactly-full heuristic, not an exact count.
func ListMessages(db *gorm.DB, conversationID uuid.UUID, limit int, before *time.Time) ([]models.Message, bool, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	query := db.
		Preload("Sender").
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var page []models.Message
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&page).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(page) == limit
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, hasMore, nil
}
