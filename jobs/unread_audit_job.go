package jobs

import (
	"log"

	"github.com/guasi18587278913/shenghaiquan-sub002/database"
	"github.com/guasi18587278913/shenghaiquan-sub002/messaging"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
)

// AuditUnreadCounters repairs unread counters that have drifted above what
// the message and receipt tables can account for. A counter may legitimately
// sit below the unreceipted-message count (reading a page zeroes it without
// receipting older history), so the audit only ever lowers counters, never
// raises them.
func AuditUnreadCounters() {
	log.Println("Running job: AuditUnreadCounters...")

	var participants []models.ConversationParticipant
	err := database.DB.
		Where("unread_count > 0").
		Find(&participants).Error
	if err != nil {
		log.Printf("Error loading participants for unread audit: %v", err)
		return
	}

	repaired := 0
	for _, participant := range participants {
		bound, err := messaging.CountUnreceipted(database.DB, participant.ConversationID, participant.UserID)
		if err != nil {
			log.Printf("Error auditing unread count for user %s in conversation %s: %v",
				participant.UserID, participant.ConversationID, err)
			continue
		}
		if participant.UnreadCount <= bound {
			continue
		}

		err = database.DB.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", participant.ConversationID, participant.UserID).
			Update("unread_count", bound).Error
		if err != nil {
			log.Printf("Error repairing unread count for user %s in conversation %s: %v",
				participant.UserID, participant.ConversationID, err)
			continue
		}

		log.Printf("Repaired unread count for user %s in conversation %s: %d -> %d",
			participant.UserID, participant.ConversationID, participant.UnreadCount, bound)
		repaired++
	}

	if repaired > 0 {
		log.Printf("✅ Unread audit repaired %d counter(s).", repaired)
	}
}
