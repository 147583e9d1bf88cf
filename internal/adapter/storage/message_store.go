// internal/adapter/storage/message_store.go

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"geowhisper/internal/domain/chat"
)

// MessageStore implements storage for chat messages
type MessageStore struct {
	db *pgxpool.Pool
}

// NewMessageStore creates a new message store
func NewMessageStore(db *pgxpool.Pool) *MessageStore {
	return &MessageStore{
		db: db,
	}
}

// AppendMessage persists a newly appended message.
func (s *MessageStore) AppendMessage(ctx context.Context, msg chat.ChatMessage) error {
	query := `
		INSERT INTO messages (
			id, zone_id, author_id, author_name, text, image_url, created_at,
			reply_to_id, replied_author, replied_text, moderation_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var replyToID, repliedAuthor, repliedText *string
	if msg.ReplyToID != "" {
		replyToID = &msg.ReplyToID
	}
	if msg.RepliedSnapshot != nil {
		repliedAuthor = &msg.RepliedSnapshot.AuthorName
		repliedText = &msg.RepliedSnapshot.Text
	}

	var imageURL *string
	if msg.ImageURL != "" {
		imageURL = &msg.ImageURL
	}

	_, err := s.db.Exec(
		ctx,
		query,
		msg.ID,
		msg.ZoneID,
		msg.AuthorID,
		msg.AuthorName,
		msg.Text,
		imageURL,
		msg.CreatedAt,
		replyToID,
		repliedAuthor,
		repliedText,
		string(msg.Moderation.Status),
	)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}

	return nil
}

// UpdateModeration updates the moderation fields of a message. The message
// body is never touched.
func (s *MessageStore) UpdateModeration(ctx context.Context, messageID string, state chat.ModerationState) error {
	query := `
		UPDATE messages
		SET moderation_status = $2,
		    moderation_reason = $3,
		    moderator_id = $4,
		    moderated_at = $5
		WHERE id = $1
	`

	tag, err := s.db.Exec(
		ctx,
		query,
		messageID,
		string(state.Status),
		state.Reason,
		state.ModeratorID,
		state.At,
	)
	if err != nil {
		return fmt.Errorf("error updating moderation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrMessageNotFound
	}

	return nil
}

// GetMessage retrieves a message by ID.
func (s *MessageStore) GetMessage(ctx context.Context, messageID string) (*chat.ChatMessage, error) {
	query := messageSelect + ` WHERE id = $1`

	row := s.db.QueryRow(ctx, query, messageID)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrMessageNotFound
		}
		return nil, fmt.Errorf("error getting message: %w", err)
	}

	return msg, nil
}

// History returns the most recent limit messages for a zone, oldest first.
func (s *MessageStore) History(ctx context.Context, zoneID string, limit int) ([]chat.ChatMessage, error) {
	query := messageSelect + `
		WHERE zone_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, zoneID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Newest-N fetched descending; callers expect oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// ZoneActivity returns message counts used for activity scoring.
func (s *MessageStore) ZoneActivity(ctx context.Context, zoneID string, since time.Time) (*chat.ActivityStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at > $3),
			COUNT(DISTINCT author_id)
		FROM messages
		WHERE zone_id = $1 AND created_at > $2
	`

	hourAgo := time.Now().Add(-time.Hour)

	var stats chat.ActivityStats
	err := s.db.QueryRow(ctx, query, zoneID, since, hourAgo).Scan(
		&stats.TotalMessages,
		&stats.LastHour,
		&stats.UniqueSenders,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying zone activity: %w", err)
	}

	return &stats, nil
}

// DeleteMessagesOlderThan removes messages older than the cutoff and
// returns how many were removed.
func (s *MessageStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

const messageSelect = `
	SELECT id, zone_id, author_id, author_name, text, image_url, created_at,
	       reply_to_id, replied_author, replied_text,
	       moderation_status, moderation_reason, moderator_id, moderated_at
	FROM messages
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*chat.ChatMessage, error) {
	var (
		msg           chat.ChatMessage
		imageURL      *string
		replyToID     *string
		repliedAuthor *string
		repliedText   *string
		status        string
		modReason     *string
		moderatorID   *string
		moderatedAt   *time.Time
	)

	err := row.Scan(
		&msg.ID,
		&msg.ZoneID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Text,
		&imageURL,
		&msg.CreatedAt,
		&replyToID,
		&repliedAuthor,
		&repliedText,
		&status,
		&modReason,
		&moderatorID,
		&moderatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imageURL != nil {
		msg.ImageURL = *imageURL
	}
	if replyToID != nil {
		msg.ReplyToID = *replyToID
	}
	if repliedAuthor != nil || repliedText != nil {
		snapshot := &chat.ReplySnapshot{MessageID: msg.ReplyToID}
		if repliedAuthor != nil {
			snapshot.AuthorName = *repliedAuthor
		}
		if repliedText != nil {
			snapshot.Text = *repliedText
		}
		msg.RepliedSnapshot = snapshot
	}

	msg.Moderation.Status = chat.ModerationStatus(status)
	if modReason != nil {
		msg.Moderation.Reason = *modReason
	}
	if moderatorID != nil {
		msg.Moderation.ModeratorID = *moderatorID
	}
	if moderatedAt != nil {
		msg.Moderation.At = *moderatedAt
	}

	return &msg, nil
}
