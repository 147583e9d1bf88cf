// internal/service/chat/channel.go

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/metrics"
)

// MessageStore defines the persistence interface for chat logs. The log is
// append-only: moderation updates touch the moderation fields only, never
// the original text.
type MessageStore interface {
	// AppendMessage persists a newly appended message.
	AppendMessage(ctx context.Context, msg chat.ChatMessage) error

	// UpdateModeration updates a message's moderation state.
	UpdateModeration(ctx context.Context, messageID string, state chat.ModerationState) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, messageID string) (*chat.ChatMessage, error)

	// History returns the most recent messages for a zone, oldest first.
	History(ctx context.Context, zoneID string, limit int) ([]chat.ChatMessage, error)
}

// EventBus publishes fan-out events to external subscribers (WebSocket
// bridges, other nodes). *nats.Conn satisfies this interface.
type EventBus interface {
	Publish(subject string, data []byte) error
}

// MessagesSubject returns the bus subject carrying appended messages for a
// zone. Zone IDs are routing-key safe by construction.
func MessagesSubject(zoneID string) string {
	return fmt.Sprintf("zone.%s.messages", zoneID)
}

// ModerationSubject returns the bus subject carrying moderation updates
// for a zone.
func ModerationSubject(zoneID string) string {
	return fmt.Sprintf("zone.%s.moderation", zoneID)
}

// ChannelConfig contains configuration for the chat channel
type ChannelConfig struct {
	MaxMessageLength int
	HistoryLimit     int
	SubscriberBuffer int
}

// Subscription is a live, cancelable subscription to one zone's message
// stream. It replays nothing: only messages appended after Subscribe are
// delivered. Cancel must be called when the subscriber disconnects or
// switches zones; leaked subscriptions are the primary resource-leak risk.
type Subscription struct {
	C <-chan chat.ChatMessage

	cancel func()
	once   sync.Once
}

// Cancel releases the subscription's fan-out registration and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// zoneLog serializes appends for a single zone. Different zones use
// different logs and never contend with each other.
type zoneLog struct {
	mu        sync.Mutex
	lastStamp time.Time
	subs      map[uint64]chan chat.ChatMessage
	nextSubID uint64
}

// Channel is the per-zone ordered chat log with live fan-out. It is the
// exclusive writer of chat messages; moderation flows through
// ApplyModeration so state changes share the same per-zone ordering as
// appends.
type Channel struct {
	store   MessageStore
	bus     EventBus
	limiter chat.RateLimiter
	config  ChannelConfig

	mu   sync.Mutex
	logs map[string]*zoneLog
}

// NewChannel creates a new chat channel. bus and limiter may be nil; a nil
// limiter disables rate limiting, a nil bus disables external fan-out.
func NewChannel(store MessageStore, bus EventBus, limiter chat.RateLimiter, config ChannelConfig) *Channel {
	return &Channel{
		store:   store,
		bus:     bus,
		limiter: limiter,
		config:  config,
		logs:    make(map[string]*zoneLog),
	}
}

func (c *Channel) log(zoneID string) *zoneLog {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.logs[zoneID]
	if !ok {
		l = &zoneLog{subs: make(map[uint64]chan chat.ChatMessage)}
		c.logs[zoneID] = l
	}
	return l
}

// Append validates, timestamps, persists and fans out a message to the
// zone's subscribers. Appends to one zone are serialized so timestamp
// assignment and delivery order are race-free; the assigned createdAt is
// strictly increasing per zone.
func (c *Channel) Append(ctx context.Context, msg chat.ChatMessage) (*chat.ChatMessage, error) {
	if msg.ZoneID == "" {
		return nil, fmt.Errorf("append: zone id is required")
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" && msg.ImageURL == "" {
		return nil, chat.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > c.config.MaxMessageLength {
		return nil, chat.ErrMessageTooLong
	}
	if text == "" {
		// Image-only messages carry a stand-in body.
		text = "\U0001F4F7 Photo"
	}
	msg.Text = text

	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, msg.AuthorID, msg.ZoneID)
		if err != nil {
			// Limiter backend failure degrades to allow; losing chat over a
			// rate-limit store outage is the wrong tradeoff.
			log.Printf("Rate limiter unavailable, allowing message: %v", err)
		} else if !allowed {
			return nil, chat.ErrRateLimited
		}
	}

	l := c.log(msg.ZoneID)
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.ID = uuid.New().String()
	msg.Moderation = chat.ModerationState{Status: chat.StatusClean}

	now := time.Now()
	if !now.After(l.lastStamp) {
		now = l.lastStamp.Add(time.Microsecond)
	}
	l.lastStamp = now
	msg.CreatedAt = now

	if err := c.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("error persisting message: %w", err)
	}

	c.fanOut(l, msg)
	c.publish(MessagesSubject(msg.ZoneID), msg)

	metrics.MessagesAppendedTotal.Inc()

	return &msg, nil
}

// Subscribe registers a live subscriber for a zone. New subscribers see
// only messages appended after subscribing.
func (c *Channel) Subscribe(zoneID string) *Subscription {
	l := c.log(zoneID)

	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	ch := make(chan chat.ChatMessage, c.config.SubscriberBuffer)
	l.subs[id] = ch
	l.mu.Unlock()

	metrics.SubscribersCurrent.Inc()

	return &Subscription{
		C: ch,
		cancel: func() {
			l.mu.Lock()
			if _, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(ch)
			}
			l.mu.Unlock()
			metrics.SubscribersCurrent.Dec()
		},
	}
}

// History returns up to limit recent messages for a zone, oldest first,
// for initial load. Limit 0 uses the configured default.
func (c *Channel) History(ctx context.Context, zoneID string, limit int) ([]chat.ChatMessage, error) {
	if limit <= 0 || limit > c.config.HistoryLimit {
		limit = c.config.HistoryLimit
	}
	return c.store.History(ctx, zoneID, limit)
}

// GetMessage retrieves a single message by ID.
func (c *Channel) GetMessage(ctx context.Context, messageID string) (*chat.ChatMessage, error) {
	return c.store.GetMessage(ctx, messageID)
}

// ApplyModeration transitions a message from Clean to the given state,
// persists the change and fans the updated message out on the zone's
// stream. Transitions are one-directional: an already-moderated message is
// rejected. The original text is never mutated.
func (c *Channel) ApplyModeration(ctx context.Context, messageID string, state chat.ModerationState) (*chat.ChatMessage, error) {
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	l := c.log(msg.ZoneID)
	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-read under the zone lock so concurrent moderators serialize.
	msg, err = c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Moderation.Status != chat.StatusClean {
		return nil, chat.ErrAlreadyModerated
	}

	if err := c.store.UpdateModeration(ctx, messageID, state); err != nil {
		return nil, fmt.Errorf("error updating moderation state: %w", err)
	}
	msg.Moderation = state

	c.fanOut(l, *msg)
	c.publish(ModerationSubject(msg.ZoneID), *msg)

	return msg, nil
}

// fanOut delivers a message to all live subscribers of the zone. Delivery
// never blocks the append path: a subscriber whose buffer is full misses
// the message and is expected to resync from History.
func (c *Channel) fanOut(l *zoneLog, msg chat.ChatMessage) {
	for _, ch := range l.subs {
		select {
		case ch <- msg:
		default:
			metrics.DroppedDeliveriesTotal.Inc()
			log.Printf("Dropping delivery to slow subscriber in zone %s", msg.ZoneID)
		}
	}
}

func (c *Channel) publish(subject string, msg chat.ChatMessage) {
	if c.bus == nil {
		return
	}

	data, err := json.Marshal(wireMessage(msg))
	if err != nil {
		log.Printf("Failed to marshal message for bus: %v", err)
		return
	}

	if err := c.bus.Publish(subject, data); err != nil {
		log.Printf("Failed to publish message to bus: %v", err)
	}
}

// wire format shared by the bus and the WebSocket bridge.
type WireMessage struct {
	ID          string    `json:"id"`
	ZoneID      string    `json:"zone_id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ReplyToID   string    `json:"reply_to_id,omitempty"`
	RepliedName string    `json:"replied_author,omitempty"`
	RepliedText string    `json:"replied_text,omitempty"`
	Moderation  string    `json:"moderation"`
	ModReason   string    `json:"moderation_reason,omitempty"`
}

func wireMessage(msg chat.ChatMessage) WireMessage {
	w := WireMessage{
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
		w.RepliedName = msg.RepliedSnapshot.AuthorName
		w.RepliedText = msg.RepliedSnapshot.Text
	}
	return w
}
