// internal/server/handlers/chat.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/service/access"
	chatsvc "geowhisper/internal/service/chat"
)

// ChatHandler handles zone chat HTTP requests
type ChatHandler struct {
	channel    *chatsvc.Channel
	pipeline   *chatsvc.Pipeline
	provider   zone.Provider
	gate       *access.ProximityGate
	moderators *identity.ModeratorList
}

// NewChatHandler creates a new chat handler
func NewChatHandler(channel *chatsvc.Channel, pipeline *chatsvc.Pipeline, provider zone.Provider, gate *access.ProximityGate, moderators *identity.ModeratorList) *ChatHandler {
	return &ChatHandler{
		channel:    channel,
		pipeline:   pipeline,
		provider:   provider,
		gate:       gate,
		moderators: moderators,
	}
}

type messageResponse struct {
	ID            string     `json:"id"`
	ZoneID        string     `json:"zone_id"`
	AuthorID      string     `json:"author_id"`
	AuthorName    string     `json:"author_name"`
	Text          string     `json:"text"`
	ImageURL      string     `json:"image_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReplyToID     string     `json:"reply_to_id,omitempty"`
	RepliedAuthor string     `json:"replied_author,omitempty"`
	RepliedText   string     `json:"replied_text,omitempty"`
	Moderation    string     `json:"moderation"`
	ModReason     string     `json:"moderation_reason,omitempty"`
	ModeratedAt   *time.Time `json:"moderated_at,omitempty"`
}

func toMessageResponse(msg chat.ChatMessage) messageResponse {
	resp := messageResponse{
		ID:         msg.ID,
		ZoneID:     msg.ZoneID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Text:       msg.Text,
		ImageURL:   msg.ImageURL,
		CreatedAt:  msg.CreatedAt,
		ReplyToID:  msg.ReplyToID,
		Moderation: string(msg.Moderation.Status),
		ModReason:  msg.Moderation.Reason,
	}
	if msg.RepliedSnapshot != nil {
		resp.RepliedAuthor = msg.RepliedSnapshot.AuthorName
		resp.RepliedText = msg.RepliedSnapshot.Text
	}
	if !msg.Moderation.At.IsZero() {
		at := msg.Moderation.At
		resp.ModeratedAt = &at
	}
	return resp
}

// GetMessages returns recent chat history for a zone, oldest first.
// History is readable regardless of distance; only sending is gated.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "id")
	session := sessionFromRequest(r, h.moderators)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	msgs, err := h.channel.History(r.Context(), zoneID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load messages", err)
		return
	}

	rendered := chatsvc.RenderHistory(msgs, session.UserID, session.Moderator)
	responses := make([]messageResponse, 0, len(rendered))
	for _, msg := range rendered {
		responses = append(responses, toMessageResponse(msg))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"zone_id":  zoneID,
		"messages": responses,
	})
}

// SendMessage appends a message to a zone's chat
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	type sendMessageRequest struct {
		Text           string  `json:"text"`
		ImageURL       string  `json:"image_url"`
		ReplyToID      string  `json:"reply_to_id"`
		Latitude       float64 `json:"latitude"`
		Longitude      float64 `json:"longitude"`
		PositionStatus string  `json:"position_status"`
		CurrentZone    bool    `json:"current_zone"`
		AcceptWarning  bool    `json:"accept_warning"`
	}

	zoneID := chi.URLParam(r, "id")
	session := sessionFromRequest(r, h.moderators)
	if session.Anonymous() {
		respondWithError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	z, err := h.provider.GetZone(zoneID)
	if err != nil {
		if errors.Is(err, zone.ErrZoneNotFound) {
			respondWithError(w, http.StatusNotFound, "Zone not found", err)
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "Zone snapshot unavailable", err)
		return
	}

	fix := fixFromBody(req.Latitude, req.Longitude, req.PositionStatus)
	decision := h.gate.Evaluate(fix, *z, req.CurrentZone)
	if !decision.CanInteract {
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":           "You are too far away to chat in this zone",
			"reason":          decision.Reason,
			"distance_meters": decision.DistanceMeters,
		})
		return
	}

	check := h.pipeline.PreCheck(r.Context(), req.Text)
	switch check.Verdict {
	case chat.VerdictBlock:
		respondWithJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":   "Message blocked by moderation",
			"verdict": string(check.Verdict),
			"reasons": check.Reasons,
		})
		return
	case chat.VerdictWarn:
		if !req.AcceptWarning {
			respondWithJSON(w, http.StatusConflict, map[string]interface{}{
				"verdict": string(check.Verdict),
				"reasons": check.Reasons,
				"message": "Resubmit with accept_warning to send anyway",
			})
			return
		}
	}

	msg := chat.ChatMessage{
		ZoneID:     zoneID,
		AuthorID:   session.UserID,
		AuthorName: session.DisplayName,
		Text:       req.Text,
		ImageURL:   req.ImageURL,
		ReplyToID:  req.ReplyToID,
	}

	if req.ReplyToID != "" {
		snapshot, err := h.replySnapshot(r, req.ReplyToID, session)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Replied message not found", err)
			return
		}
		msg.RepliedSnapshot = snapshot
	}

	appended, err := h.channel.Append(r.Context(), msg)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			respondWithError(w, http.StatusBadRequest, "Message has no content", err)
		case errors.Is(err, chat.ErrMessageTooLong):
			respondWithError(w, http.StatusBadRequest, "Message is too long", err)
		case errors.Is(err, chat.ErrRateLimited):
			respondWithError(w, http.StatusTooManyRequests, "You are sending messages too quickly", err)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to send message", err)
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, toMessageResponse(*appended))
}

// replySnapshot captures the replied-to message as the sender sees it
// right now, so later moderation of the original cannot retroactively
// change the reply.
func (h *ChatHandler) replySnapshot(r *http.Request, replyToID string, session identity.Session) (*chat.ReplySnapshot, error) {
	original, err := h.channel.GetMessage(r.Context(), replyToID)
	if err != nil {
		return nil, err
	}

	rendered, visible := chatsvc.RenderFor(*original, session.UserID, session.Moderator)
	if !visible {
		return nil, chat.ErrMessageNotFound
	}

	return &chat.ReplySnapshot{
		MessageID:  original.ID,
		AuthorName: rendered.AuthorName,
		Text:       rendered.Text,
	}, nil
}

// ModerateMessage applies a moderator action to a message
func (h *ChatHandler) ModerateMessage(w http.ResponseWriter, r *http.Request) {
	type moderateRequest struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}

	messageID := chi.URLParam(r, "messageID")
	session := sessionFromRequest(r, h.moderators)

	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := h.pipeline.Apply(r.Context(), messageID, session.UserID, chat.ModerationAction(req.Action), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotModerator):
			respondWithError(w, http.StatusForbidden, "Moderator capability required", err)
		case errors.Is(err, chat.ErrInvalidAction):
			respondWithError(w, http.StatusBadRequest, "Unknown moderation action", err)
		case errors.Is(err, chat.ErrMessageNotFound):
			respondWithError(w, http.StatusNotFound, "Message not found", err)
		case errors.Is(err, chat.ErrAlreadyModerated):
			respondWithError(w, http.StatusConflict, "Message is already moderated", err)
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to moderate message", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toMessageResponse(*msg))
}
