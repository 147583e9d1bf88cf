// internal/server/handlers/chat_test.go

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/service/access"
	chatsvc "geowhisper/internal/service/chat"
)

// memMessageStore is an in-memory message store for handler tests.
type memMessageStore struct {
	mu       sync.Mutex
	messages []chat.ChatMessage
}

func (s *memMessageStore) AppendMessage(ctx context.Context, msg chat.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memMessageStore) UpdateModeration(ctx context.Context, messageID string, state chat.ModerationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Moderation = state
			return nil
		}
	}
	return chat.ErrMessageNotFound
}

func (s *memMessageStore) GetMessage(ctx context.Context, messageID string) (*chat.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			msg := s.messages[i]
			return &msg, nil
		}
	}
	return nil, chat.ErrMessageNotFound
}

func (s *memMessageStore) History(ctx context.Context, zoneID string, limit int) ([]chat.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.ChatMessage
	for _, msg := range s.messages {
		if msg.ZoneID == zoneID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func chatTestRouter(t *testing.T) (*chi.Mux, *chatsvc.Channel) {
	t.Helper()

	store := &memMessageStore{}
	channel := chatsvc.NewChannel(store, nil, nil, chatsvc.ChannelConfig{
		MaxMessageLength: 1000,
		HistoryLimit:     100,
		SubscriberBuffer: 16,
	})

	moderators := identity.NewModeratorList([]string{"mod-1"})
	pipeline := chatsvc.NewPipeline(nil, channel, moderators, nil, chatsvc.PipelineConfig{
		ProfanityList: []string{"badword"},
	})

	gate := access.NewProximityGate(access.GateConfig{
		InteractionRadiusMeters: 500,
		CurrentZoneRadiusMeters: 500,
	})

	handler := NewChatHandler(channel, pipeline, testProvider(), gate, moderators)

	router := chi.NewRouter()
	router.Get("/zones/{id}/messages", handler.GetMessages)
	router.Post("/zones/{id}/messages", handler.SendMessage)
	router.Post("/zones/{id}/messages/{messageID}/moderate", handler.ModerateMessage)
	return router, channel
}

func sendMessage(router *chi.Mux, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/zones/tw_aaa111bbb222/messages", strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", "Tester")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendMessageWithinRange(t *testing.T) {
	router, _ := chatTestRouter(t)

	rec := sendMessage(router, "user-1", `{"text":"hello zone","latitude":0,"longitude":0.001,"position_status":"ok"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "hello zone", body.Text)
	assert.Equal(t, "clean", body.Moderation)
}

func TestSendMessageTooFar(t *testing.T) {
	router, _ := chatTestRouter(t)

	rec := sendMessage(router, "user-1", `{"text":"hello","latitude":0,"longitude":0.01,"position_status":"ok"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too far", body["reason"])
}

func TestSendMessageDeclaredCurrentZone(t *testing.T) {
	router, _ := chatTestRouter(t)

	rec := sendMessage(router, "user-1", `{"text":"hello","current_zone":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSendMessageRequiresAuth(t *testing.T) {
	router, _ := chatTestRouter(t)

	rec := sendMessage(router, "", `{"text":"hello","current_zone":true}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendMessageWarnRequiresConfirmation(t *testing.T) {
	router, _ := chatTestRouter(t)

	rec := sendMessage(router, "user-1", `{"text":"you badword","current_zone":true}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = sendMessage(router, "user-1", `{"text":"you badword","current_zone":true,"accept_warning":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestModerateEndpoint(t *testing.T) {
	router, channel := chatTestRouter(t)

	appended, err := channel.Append(context.Background(), chat.ChatMessage{
		ZoneID:     "tw_aaa111bbb222",
		AuthorID:   "user-1",
		AuthorName: "Tester",
		Text:       "to be hidden",
	})
	require.NoError(t, err)

	moderate := func(userID, action string) *httptest.ResponseRecorder {
		body := `{"action":"` + action + `","reason":"spam"}`
		req := httptest.NewRequest(http.MethodPost,
			"/zones/tw_aaa111bbb222/messages/"+appended.ID+"/moderate", strings.NewReader(body))
		req.Header.Set("X-User-ID", userID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// Non-moderators are rejected.
	rec := moderate("user-1", "HIDE")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = moderate("mod-1", "HIDE")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hidden", body.Moderation)

	// Second action conflicts.
	rec = moderate("mod-1", "DELETE")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetMessagesRendersForViewer(t *testing.T) {
	router, channel := chatTestRouter(t)
	ctx := context.Background()

	visible, err := channel.Append(ctx, chat.ChatMessage{
		ZoneID: "tw_aaa111bbb222", AuthorID: "user-1", AuthorName: "A", Text: "visible",
	})
	require.NoError(t, err)

	hidden, err := channel.Append(ctx, chat.ChatMessage{
		ZoneID: "tw_aaa111bbb222", AuthorID: "user-2", AuthorName: "B", Text: "hidden text",
	})
	require.NoError(t, err)

	_, err = channel.ApplyModeration(ctx, hidden.ID, chat.ModerationState{
		Status: chat.StatusHidden, ModeratorID: "mod-1",
	})
	require.NoError(t, err)

	get := func(userID string) []messageResponse {
		req := httptest.NewRequest(http.MethodGet, "/zones/tw_aaa111bbb222/messages", nil)
		if userID != "" {
			req.Header.Set("X-User-ID", userID)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Messages []messageResponse `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Messages
	}

	// A bystander sees only the clean message.
	msgs := get("user-3")
	require.Len(t, msgs, 1)
	assert.Equal(t, visible.ID, msgs[0].ID)

	// The author still sees their hidden message.
	msgs = get("user-2")
	require.Len(t, msgs, 2)

	// A moderator sees everything.
	msgs = get("mod-1")
	require.Len(t, msgs, 2)
}
