package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/guasi18587278913/shenghaiquan-sub002/database"
	"github.com/guasi18587278913/shenghaiquan-sub002/models"
	"github.com/guasi18587278913/shenghaiquan-sub002/routes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
	))
	database.DB = db

	app := fiber.New()
	routes.MessagingRoutes(app)
	return app, db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{
		FullName: name,
		Email:    name + "@example.com",
		Password: "not-a-real-hash",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, app *fiber.App, method, target, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestMessagingRoutesRequireIdentity(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDirectConversationLifecycle(t *testing.T) {
	app, db := setupApp(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	// First contact creates the conversation.
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/conversations", tokenFor(t, alice.ID), fiber.Map{
		"participant_ids": []string{bob.ID.String()},
		"type":            "direct",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["is_new"])
	conversationID := body["conversation"].(map[string]any)["id"].(string)

	// The other side resumes the same conversation.
	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/conversations", tokenFor(t, bob.ID), fiber.Map{
		"participant_ids": []string{alice.ID.String()},
		"type":            "direct",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_new"])
	assert.Equal(t, conversationID, body["conversation"].(map[string]any)["id"].(string))

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), fiber.Map{
		"conversation_id": conversationID,
		"content":         "hello bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	// Bob sees one unread conversation named after Alice.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/conversations", tokenFor(t, bob.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
	entry := body["conversations"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 1, entry["unread_count"])
	assert.Equal(t, "alice", entry["name"])
	assert.Equal(t, "hello bob", entry["last_message"].(map[string]any)["content"])

	// Reading the page zeroes the counter.
	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/messages?conversation_id="+conversationID, tokenFor(t, bob.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["has_more"])
	require.Len(t, body["messages"].([]any), 1)

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/conversations", tokenFor(t, bob.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry = body["conversations"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 0, entry["unread_count"])
}

func TestSendMessageValidation(t *testing.T) {
	app, db := setupApp(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	stranger := createUser(t, db, "stranger")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/conversations", tokenFor(t, alice.ID), fiber.Map{
		"participant_ids": []string{bob.ID.String()},
		"type":            "direct",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conversationID := body["conversation"].(map[string]any)["id"].(string)

	// Missing content.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), fiber.Map{
		"conversation_id": conversationID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing conversation id.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), fiber.Map{
		"content": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Outsiders are rejected before anything is written.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, stranger.ID), fiber.Map{
		"conversation_id": conversationID,
		"content":         "let me in",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/messages?conversation_id="+conversationID, tokenFor(t, stranger.ID), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A conversation id that does not resolve is a 404, not a 403.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), fiber.Map{
		"conversation_id": uuid.NewString(),
		"content":         "hello?",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A direct conversation with more than one other participant is invalid.
	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/conversations", tokenFor(t, alice.ID), fiber.Map{
		"participant_ids": []string{bob.ID.String(), stranger.ID.String()},
		"type":            "direct",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessageNonceRetry(t *testing.T) {
	app, db := setupApp(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/conversations", tokenFor(t, alice.ID), fiber.Map{
		"participant_ids": []string{bob.ID.String()},
		"type":            "direct",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conversationID := body["conversation"].(map[string]any)["id"].(string)

	send := fiber.Map{
		"conversation_id": conversationID,
		"content":         "hello",
		"client_nonce":    fmt.Sprintf("nonce-%d", time.Now().UnixNano()),
	}

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), send)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	firstID := body["message"].(map[string]any)["id"].(string)

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/messages", tokenFor(t, alice.ID), send)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, firstID, body["message"].(map[string]any)["id"].(string))

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
