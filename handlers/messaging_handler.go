package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/messaging"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"gorm.io/datatypes"
)

var validate = validator.New()

func callerID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("missing caller identity")
	}
	claims := token.Claims.(jwt.MapClaims)
	raw, _ := claims["user_id"].(string)
	return uuid.Parse(raw)
}

func messagingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, messaging.ErrInvalidArgument):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, messaging.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not a participant of this conversation"})
	case errors.Is(err, messaging.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	default:
		log.Printf("🔥 Messaging store failure: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong, please try again"})
	}
}

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,uuid"`
	Type           string   `json:"type" validate:"required,oneof=direct group"`
	Name           *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Avatar         *string  `json:"avatar,omitempty" validate:"omitempty,max=255"`
}

// CreateConversation starts a conversation. For type=direct with one other
// user this is get-or-create: at most one direct conversation ever exists per
// pair, and the response tells the caller whether this call created it.
func CreateConversation(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid caller identity"})
	}

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	participantIDs := make([]uuid.UUID, 0, len(req.ParticipantIDs))
	for _, raw := range req.ParticipantIDs {
		id, _ := uuid.Parse(raw)
		participantIDs = append(participantIDs, id)
	}

	if req.Type == models.ConversationTypeDirect {
		if len(participantIDs) != 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A direct conversation takes exactly one other participant"})
		}
		conversation, isNew, err := messaging.GetOrCreateDirectConversation(userID, participantIDs[0])
		if err != nil {
			return messagingError(c, err)
		}
		status := fiber.StatusOK
		if isNew {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"conversation": conversation, "is_new": isNew})
	}

	conversation, err := messaging.CreateGroupConversation(userID, participantIDs, req.Name, req.Avatar)
	if err != nil {
		return messagingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation, "is_new": true})
}

// GetUserConversations lists the caller's conversations, most recently active
// first, each with their unread counter and a preview of the latest message.
func GetUserConversations(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid caller identity"})
	}

	summaries, err := messaging.ListConversations(userID)
	if err != nil {
		return messagingError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": summaries, "total": len(summaries)})
}

type SendMessageRequest struct {
	ConversationID string         `json:"conversation_id" validate:"required,uuid"`
	Content        string         `json:"content" validate:"required"`
	Type           string         `json:"type,omitempty" validate:"omitempty,oneof=text rich system"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	ClientNonce    *string        `json:"client_nonce,omitempty" validate:"omitempty,max=64"`
}

// SendMessage appends a message to a conversation the caller participates in.
// Retrying with the same client_nonce returns the originally stored message.
func SendMessage(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid caller identity"})
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	conversationID, _ := uuid.Parse(req.ConversationID)

	message, err := messaging.Send(conversationID, userID, req.Type, req.Content, req.Metadata, req.ClientNonce)
	if err != nil {
		return messagingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message, "success": true})
}

// GetConversationMessages returns one keyset page of messages, oldest first.
// Reading a page is an acknowledgment: every returned message authored by
// someone else is marked read and the caller's unread counter drops to zero.
func GetConversationMessages(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid caller identity"})
	}

	conversationID, err := uuid.Parse(c.Query("conversation_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversation_id is required"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(messaging.DefaultPageSize)))

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "before must be an RFC3339 timestamp"})
		}
		before = &parsed
	}

	page, err := messaging.FetchAndMarkRead(conversationID, userID, limit, before)
	if err != nil {
		return messagingError(c, err)
	}
	return c.JSON(page)
}
