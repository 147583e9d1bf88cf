// internal/domain/chat/model.go

package chat

import (
	"context"
	"errors"
	"time"
)

// ModerationStatus is the moderation state of a message. Transitions are
// moderator-only and one-directional: Clean may move to Hidden, Deleted, or
// Flagged; no state ever moves back. Re-allowing content requires a fresh
// message.
type ModerationStatus string

const (
	StatusClean   ModerationStatus = "clean"
	StatusHidden  ModerationStatus = "hidden"
	StatusDeleted ModerationStatus = "deleted"
	StatusFlagged ModerationStatus = "flagged"
)

// ModerationAction is a moderator request against an appended message.
type ModerationAction string

const (
	ActionHide   ModerationAction = "HIDE"
	ActionDelete ModerationAction = "DELETE"
	ActionFlag   ModerationAction = "FLAG"
)

// Status returns the moderation status an action transitions a message to.
func (a ModerationAction) Status() (ModerationStatus, error) {
	switch a {
	case ActionHide:
		return StatusHidden, nil
	case ActionDelete:
		return StatusDeleted, nil
	case ActionFlag:
		return StatusFlagged, nil
	default:
		return "", ErrInvalidAction
	}
}

// ModerationState records who moderated a message, when, and why. The
// original text is always retained for audit; only presentation changes.
type ModerationState struct {
	Status      ModerationStatus
	Reason      string
	ModeratorID string
	At          time.Time
}

// ReplySnapshot denormalizes the replied-to message at send time so the
// reply still renders correctly if the original is later hidden or deleted.
// This is an intentional denormalization.
type ReplySnapshot struct {
	MessageID  string
	AuthorName string
	Text       string
}

// ChatMessage is one entry in a zone's append-only chat log. CreatedAt is
// assigned at append time and is strictly monotonic per zone. A message is
// never removed from the log; moderation changes its ModerationState,
// which governs rendering, not its existence.
type ChatMessage struct {
	ID              string
	ZoneID          string
	AuthorID        string
	AuthorName      string
	Text            string
	ImageURL        string
	CreatedAt       time.Time
	ReplyToID       string
	RepliedSnapshot *ReplySnapshot
	Moderation      ModerationState
}

// Messaging errors.
var (
	ErrInvalidAction    = errors.New("invalid moderation action")
	ErrNotModerator     = errors.New("caller is not a moderator")
	ErrMessageNotFound  = errors.New("message not found")
	ErrAlreadyModerated = errors.New("message already moderated")
	ErrEmptyMessage     = errors.New("message has no content")
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrRateLimited      = errors.New("message rate limit exceeded")
)

// PreCheckVerdict is the advisory outcome of a pre-send content check.
type PreCheckVerdict string

const (
	VerdictAllow PreCheckVerdict = "allow"
	VerdictWarn  PreCheckVerdict = "warn"
	VerdictBlock PreCheckVerdict = "block"
)

// PreCheckResult is the pre-moderation decision for an outgoing message.
// A warn result lets the sender resubmit with an explicit override.
// Degraded is set when the external classifier was unavailable and the
// pipeline fell back to local heuristics only.
type PreCheckResult struct {
	Verdict    PreCheckVerdict
	Reasons    []string
	Confidence float64
	Degraded   bool
}

// Classification is the raw response from the external moderation
// classifier, whose internals are out of scope for the engine.
type Classification struct {
	Violations      []string
	Confidence      float64
	SuggestedAction string // ALLOW, WARN, or BLOCK
}

// Classifier is the contract for the external moderation classifier.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// RateLimiter bounds how quickly a user may send messages to a zone.
type RateLimiter interface {
	// Allow reports whether the user may send another message to the zone
	// right now, recording the attempt if allowed.
	Allow(ctx context.Context, userID, zoneID string) (bool, error)
}

// ModeratorRegistry answers whether a user holds moderator capability.
type ModeratorRegistry interface {
	IsModerator(userID string) bool
}

// ActivityStats summarizes recent message activity in one zone.
type ActivityStats struct {
	TotalMessages int
	LastHour      int
	UniqueSenders int
}
