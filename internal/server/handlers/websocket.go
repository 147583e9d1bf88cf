// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/domain/identity"
	"geowhisper/internal/domain/position"
	"geowhisper/internal/domain/zone"
	"geowhisper/internal/service/access"
	chatsvc "geowhisper/internal/service/chat"
	possvc "geowhisper/internal/service/position"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks are enforced by the gateway in front of this service.
		return true
	},
}

// ZoneWebSocketDeps bundles the services a live zone connection needs.
type ZoneWebSocketDeps struct {
	NATS       *nats.Conn
	Channel    *chatsvc.Channel
	Pipeline   *chatsvc.Pipeline
	Provider   zone.Provider
	Gate       *access.ProximityGate
	Moderators *identity.ModeratorList
	Debounce   possvc.DebounceConfig
}

// zoneClient represents one live WebSocket connection to a zone's chat.
type zoneClient struct {
	conn      *websocket.Conn
	send      chan []byte
	zoneID    string
	session   identity.Session
	deps      ZoneWebSocketDeps
	debouncer *possvc.Debouncer

	// Bus events that arrive between subscribing and sending history are
	// parked and flushed after the history event, minus the messages
	// history already carried, so nothing in that window is delivered
	// twice or lost.
	mu          sync.Mutex
	natsSubs    []*nats.Subscription
	historySent bool
	historyIDs  map[string]struct{}
	parked      []parkedEvent
	closeOnce   sync.Once
}

type parkedEvent struct {
	eventType string
	wire      chatsvc.WireMessage
}

// ZoneWebSocketHandler handles WebSocket connections for live zone chat.
// Clients receive history once on connect, then only messages appended
// while connected; a reconnect re-requests history rather than replaying.
func ZoneWebSocketHandler(deps ZoneWebSocketDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zoneID := chi.URLParam(r, "id")
		if zoneID == "" {
			http.Error(w, "Missing zone ID", http.StatusBadRequest)
			return
		}

		if _, err := deps.Provider.GetZone(zoneID); err != nil {
			if errors.Is(err, zone.ErrZoneNotFound) {
				http.Error(w, "Zone not found", http.StatusNotFound)
			} else {
				http.Error(w, "Zone snapshot unavailable", http.StatusServiceUnavailable)
			}
			return
		}

		session := sessionFromRequest(r, deps.Moderators)
		if session.UserID == "" {
			// Fall back to query for browser WebSocket clients that cannot
			// set headers.
			session.UserID = r.URL.Query().Get("user_id")
			if name := r.URL.Query().Get("user_name"); name != "" {
				session.DisplayName = name
			}
			session.Moderator = session.UserID != "" && deps.Moderators.IsModerator(session.UserID)
		}
		if session.UserID == "" {
			http.Error(w, "Missing user ID", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &zoneClient{
			conn:      conn,
			send:      make(chan []byte, 256),
			zoneID:    zoneID,
			session:   session,
			deps:      deps,
			debouncer: possvc.NewDebouncer(deps.Debounce),
		}

		if fix := fixFromQuery(r); fix.OK() {
			client.debouncer.Offer(fix)
		}

		go client.writePump()
		go client.readPump()

		if err := client.subscribeToZone(); err != nil {
			log.Printf("Failed to subscribe to zone topics: %v", err)
			client.closeConnection()
			return
		}

		client.sendEvent("welcome", map[string]interface{}{
			"zone_id": zoneID,
			"time":    time.Now(),
		})

		log.Printf("New WebSocket connection for zone %s from user %s", zoneID, session.UserID)

		client.sendHistory(r.Context())
	}
}

// readPump pumps messages from the WebSocket connection into the engine
func (c *zoneClient) readPump() {
	config := DefaultWebSocketConfig()

	defer func() {
		c.closeConnection()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.processIncomingMessage(message)
	}
}

// writePump pumps outbound messages to the WebSocket connection
func (c *zoneClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIncomingMessage routes an incoming WebSocket frame by type
func (c *zoneClient) processIncomingMessage(message []byte) {
	var msg struct {
		Type           string  `json:"type"`
		Text           string  `json:"text"`
		ImageURL       string  `json:"image_url"`
		ReplyToID      string  `json:"reply_to_id"`
		Latitude       float64 `json:"latitude"`
		Longitude      float64 `json:"longitude"`
		PositionStatus string  `json:"position_status"`
		CurrentZone    bool    `json:"current_zone"`
		AcceptWarning  bool    `json:"accept_warning"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to parse WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case "message":
		c.handleChatMessage(msg.Text, msg.ImageURL, msg.ReplyToID, msg.CurrentZone, msg.AcceptWarning)

	case "position":
		c.handlePositionUpdate(msg.Latitude, msg.Longitude, msg.PositionStatus)

	case "typing":
		c.handleTypingIndicator()

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// handleChatMessage gates, screens and appends a chat message
func (c *zoneClient) handleChatMessage(text, imageURL, replyToID string, declaredCurrent, acceptWarning bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	z, err := c.deps.Provider.GetZone(c.zoneID)
	if err != nil {
		c.sendEvent("error", map[string]interface{}{"error": "zone unavailable"})
		return
	}

	fix, ok := c.debouncer.Last()
	if !ok {
		fix = position.Fix{Status: position.StatusUnavailable, At: time.Now()}
	}

	decision := c.deps.Gate.Evaluate(fix, *z, declaredCurrent)
	if !decision.CanInteract {
		c.sendEvent("denied", map[string]interface{}{
			"reason":          decision.Reason,
			"distance_meters": decision.DistanceMeters,
		})
		return
	}

	check := c.deps.Pipeline.PreCheck(ctx, text)
	switch check.Verdict {
	case chat.VerdictBlock:
		c.sendEvent("blocked", map[string]interface{}{"reasons": check.Reasons})
		return
	case chat.VerdictWarn:
		if !acceptWarning {
			c.sendEvent("warning", map[string]interface{}{"reasons": check.Reasons})
			return
		}
	}

	out := chat.ChatMessage{
		ZoneID:     c.zoneID,
		AuthorID:   c.session.UserID,
		AuthorName: c.session.DisplayName,
		Text:       text,
		ImageURL:   imageURL,
		ReplyToID:  replyToID,
	}

	if replyToID != "" {
		if original, err := c.deps.Channel.GetMessage(ctx, replyToID); err == nil {
			if rendered, visible := chatsvc.RenderFor(*original, c.session.UserID, c.session.Moderator); visible {
				out.RepliedSnapshot = &chat.ReplySnapshot{
					MessageID:  original.ID,
					AuthorName: rendered.AuthorName,
					Text:       rendered.Text,
				}
			}
		}
	}

	// Delivery happens over NATS fan-out; the sender sees the message the
	// same way everyone else does.
	if _, err := c.deps.Channel.Append(ctx, out); err != nil {
		c.sendEvent("error", map[string]interface{}{"error": err.Error()})
	}
}

// handlePositionUpdate feeds a raw fix through the debouncer
func (c *zoneClient) handlePositionUpdate(lat, lng float64, status string) {
	c.debouncer.Offer(fixFromBody(lat, lng, status))
}

// handleTypingIndicator relays a typing event to the zone
func (c *zoneClient) handleTypingIndicator() {
	event, _ := json.Marshal(map[string]interface{}{
		"type":      "typing",
		"user_id":   c.session.UserID,
		"user_name": c.session.DisplayName,
		"time":      time.Now(),
	})

	topic := fmt.Sprintf("zone.%s.typing", c.zoneID)
	if err := c.deps.NATS.Publish(topic, event); err != nil {
		log.Printf("Failed to publish typing indicator: %v", err)
	}
}

// subscribeToZone subscribes to the zone's NATS topics
func (c *zoneClient) subscribeToZone() error {
	msgSub, err := c.deps.NATS.Subscribe(chatsvc.MessagesSubject(c.zoneID), func(msg *nats.Msg) {
		c.forwardWireMessage("message", msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to messages: %w", err)
	}

	modSub, err := c.deps.NATS.Subscribe(chatsvc.ModerationSubject(c.zoneID), func(msg *nats.Msg) {
		c.forwardWireMessage("moderation", msg.Data)
	})
	if err != nil {
		msgSub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to moderation events: %w", err)
	}

	typingSub, err := c.deps.NATS.Subscribe(fmt.Sprintf("zone.%s.typing", c.zoneID), func(msg *nats.Msg) {
		c.enqueue(msg.Data)
	})
	if err != nil {
		msgSub.Unsubscribe()
		modSub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to typing indicators: %w", err)
	}

	c.mu.Lock()
	c.natsSubs = append(c.natsSubs, msgSub, modSub, typingSub)
	c.mu.Unlock()

	return nil
}

// forwardWireMessage routes a bus message to the client, parking it while
// history is still in flight and dropping the live copy of any message the
// history event already delivered.
func (c *zoneClient) forwardWireMessage(eventType string, data []byte) {
	var wire chatsvc.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		log.Printf("Failed to parse bus message: %v", err)
		return
	}

	c.mu.Lock()
	if !c.historySent {
		c.parked = append(c.parked, parkedEvent{eventType: eventType, wire: wire})
		c.mu.Unlock()
		return
	}
	if eventType == "message" {
		if _, dup := c.historyIDs[wire.ID]; dup {
			delete(c.historyIDs, wire.ID)
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()

	c.deliverWire(eventType, wire)
}

// deliverWire applies per-viewer visibility rules to a bus message before
// forwarding it. The bus carries real text; hidden content must not reach
// viewers who may not see it.
func (c *zoneClient) deliverWire(eventType string, wire chatsvc.WireMessage) {
	msg := chat.ChatMessage{
		ID:         wire.ID,
		ZoneID:     wire.ZoneID,
		AuthorID:   wire.AuthorID,
		AuthorName: wire.AuthorName,
		Text:       wire.Text,
		ImageURL:   wire.ImageURL,
		CreatedAt:  wire.CreatedAt,
		ReplyToID:  wire.ReplyToID,
		Moderation: chat.ModerationState{
			Status: chat.ModerationStatus(wire.Moderation),
			Reason: wire.ModReason,
		},
	}
	if wire.RepliedName != "" || wire.RepliedText != "" {
		msg.RepliedSnapshot = &chat.ReplySnapshot{
			MessageID:  wire.ReplyToID,
			AuthorName: wire.RepliedName,
			Text:       wire.RepliedText,
		}
	}
	if msg.Moderation.Status == "" {
		msg.Moderation.Status = chat.StatusClean
	}

	rendered, visible := chatsvc.RenderFor(msg, c.session.UserID, c.session.Moderator)
	if !visible {
		if eventType == "moderation" {
			// The viewer loses sight of a message they may have already
			// rendered; tell them to drop it.
			c.sendEvent("removed", map[string]interface{}{"id": msg.ID})
		}
		return
	}

	c.sendEvent(eventType, wireToPayload(rendered))
}

func wireToPayload(msg chat.ChatMessage) map[string]interface{} {
	payload := map[string]interface{}{
		"id":          msg.ID,
		"zone_id":     msg.ZoneID,
		"author_id":   msg.AuthorID,
		"author_name": msg.AuthorName,
		"text":        msg.Text,
		"created_at":  msg.CreatedAt,
		"moderation":  string(msg.Moderation.Status),
	}
	if msg.ImageURL != "" {
		payload["image_url"] = msg.ImageURL
	}
	if msg.ReplyToID != "" {
		payload["reply_to_id"] = msg.ReplyToID
	}
	if msg.RepliedSnapshot != nil {
		payload["replied_author"] = msg.RepliedSnapshot.AuthorName
		payload["replied_text"] = msg.RepliedSnapshot.Text
	}
	if msg.Moderation.Reason != "" {
		payload["moderation_reason"] = msg.Moderation.Reason
	}
	return payload
}

// sendHistory sends the recent chat history to the client, then releases
// any bus events parked while the fetch was in flight.
func (c *zoneClient) sendHistory(ctx context.Context) {
	msgs, err := c.deps.Channel.History(ctx, c.zoneID, 0)
	if err != nil {
		log.Printf("Failed to load history for zone %s: %v", c.zoneID, err)
		msgs = nil
	}

	ids := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		ids[msg.ID] = struct{}{}
	}

	if err == nil {
		rendered := chatsvc.RenderHistory(msgs, c.session.UserID, c.session.Moderator)
		payloads := make([]map[string]interface{}, 0, len(rendered))
		for _, msg := range rendered {
			payloads = append(payloads, wireToPayload(msg))
		}
		c.sendEvent("history", map[string]interface{}{"messages": payloads})
	}

	c.mu.Lock()
	c.historySent = true
	c.historyIDs = ids
	parked := c.parked
	c.parked = nil
	c.mu.Unlock()

	for _, p := range parked {
		if p.eventType == "message" {
			if _, dup := ids[p.wire.ID]; dup {
				delete(ids, p.wire.ID)
				continue
			}
		}
		c.deliverWire(p.eventType, p.wire)
	}
}

func (c *zoneClient) sendEvent(eventType string, payload map[string]interface{}) {
	payload["type"] = eventType
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *zoneClient) enqueue(data []byte) {
	defer func() {
		// Losing the race with closeConnection is fine; the client is gone.
		recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}

// closeConnection closes the WebSocket connection and cleans up resources
func (c *zoneClient) closeConnection() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		for _, sub := range c.natsSubs {
			sub.Unsubscribe()
		}
		c.natsSubs = nil
		c.mu.Unlock()

		c.conn.Close()
		close(c.send)

		log.Printf("WebSocket connection closed for zone %s, user %s", c.zoneID, c.session.UserID)
	})
}
