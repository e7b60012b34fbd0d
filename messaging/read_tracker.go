package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The read tracker is the only code allowed to touch unread_count and
// message_reads. Everything else goes through MarkDelivered and MarkRead.

// MarkDelivered bumps the unread counter of every participant except the
// author. The increment happens in SQL, not as a load-add-store in Go, so
// concurrent sends cannot drop each other's increments.
func MarkDelivered(db *gorm.DB, conversationID, authorID uuid.UUID) error {
	return db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, authorID).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error
}

// MarkRead records a read receipt for each message id, skipping pairs that
// already exist, then resets the user's unread counter to zero. The reset is
// unconditional: opening a conversation means the caller has seen the page
// they were handed, and a fully read conversation always nets out to zero
// even when another session already receipted some of the messages.
func MarkRead(db *gorm.DB, conversationID, userID uuid.UUID, messageIDs []uuid.UUID) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if len(messageIDs) > 0 {
			now := time.Now()
			receipts := make([]models.MessageRead, 0, len(messageIDs))
			for _, messageID := range messageIDs {
				receipts = append(receipts, models.MessageRead{
					MessageID: messageID,
					UserID:    userID,
					ReadAt:    now,
				})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("unread_count", 0).Error
	})
}

// CountUnreceipted counts the user's foreign, non-deleted messages in the
// conversation that have no read receipt yet. The unread counter can never
// legitimately exceed this bound; the audit job uses it to repair drift.
func CountUnreceipted(db *gorm.DB, conversationID, userID uuid.UUID) (int64, error) {
	receipted := db.Model(&models.MessageRead{}).
		Select("message_id").
		Where("user_id = ?", userID)

	var count int64
	err := db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND deleted_at IS NULL", conversationID, userID).
		Where("id NOT IN (?)", receipted).
		Count(&count).Error
	return count, err
}
