// internal/service/chat/moderation.go

package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"geowhisper/internal/domain/chat"
	"geowhisper/internal/metrics"
)

// DeletedPlaceholder replaces the body of deleted messages for every
// viewer, moderators included.
const DeletedPlaceholder = "[Message deleted by moderator]"

// PreCheckCache caches pre-check results keyed by content hash so repeated
// identical texts skip the external classifier.
type PreCheckCache interface {
	Get(ctx context.Context, key string) (*chat.PreCheckResult, bool)
	Set(ctx context.Context, key string, result chat.PreCheckResult)
}

// PipelineConfig contains configuration for the moderation pipeline
type PipelineConfig struct {
	ClassifyTimeout time.Duration
	ProfanityList   []string
}

// Pipeline screens outgoing messages before they enter a channel and
// applies moderator actions to messages already in the log.
type Pipeline struct {
	classifier chat.Classifier
	channel    *Channel
	moderators chat.ModeratorRegistry
	cache      PreCheckCache
	config     PipelineConfig
}

// NewPipeline creates a new moderation pipeline. classifier and cache may
// be nil; a nil classifier runs local heuristics only.
func NewPipeline(classifier chat.Classifier, channel *Channel, moderators chat.ModeratorRegistry, cache PreCheckCache, config PipelineConfig) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		channel:    channel,
		moderators: moderators,
		cache:      cache,
		config:     config,
	}
}

var linkPattern = regexp.MustCompile(`https?://\S+`)

// localViolations runs the heuristic checks that need no external call.
func localViolations(text string, profanity []string) []string {
	var violations []string

	lower := strings.ToLower(text)
	for _, word := range profanity {
		if strings.Contains(lower, word) {
			violations = append(violations, "inappropriate language")
			break
		}
	}

	if len(linkPattern.FindAllString(text, -1)) > 3 {
		violations = append(violations, "excessive links")
	}

	if hasCharRepetition(text, 10) {
		violations = append(violations, "character spam")
	}

	if isShouting(text) {
		violations = append(violations, "excessive caps")
	}

	return violations
}

// hasCharRepetition reports whether text contains a run of n or more
// identical characters.
func hasCharRepetition(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// isShouting reports whether a message longer than 20 characters has
// letters that are all upper case.
func isShouting(text string) bool {
	if utf8.RuneCountInString(text) <= 20 {
		return false
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters > 0
}

// PreCheck screens a message text before it is appended. Local heuristics
// run first; more than two local violations blocks outright without
// consulting the classifier. Otherwise the external classifier is asked
// with a bounded timeout, and any classifier failure degrades to allow so
// an unavailable moderation backend never silences the chat.
func (p *Pipeline) PreCheck(ctx context.Context, text string) chat.PreCheckResult {
	violations := localViolations(text, p.config.ProfanityList)
	if len(violations) > 2 {
		return chat.PreCheckResult{
			Verdict:    chat.VerdictBlock,
			Reasons:    violations,
			Confidence: 1.0,
		}
	}

	key := contentKey(text)
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, key); ok {
			return *cached
		}
	}

	result := chat.PreCheckResult{Verdict: chat.VerdictAllow, Reasons: violations}
	if len(violations) > 0 {
		result.Verdict = chat.VerdictWarn
	}

	if p.classifier != nil {
		classifyCtx, cancel := context.WithTimeout(ctx, p.config.ClassifyTimeout)
		defer cancel()

		classification, err := p.classifier.Classify(classifyCtx, text)
		if err != nil {
			log.Printf("Classifier unavailable, allowing with local verdict: %v", err)
			metrics.PreCheckDegradedTotal.Inc()
			result.Degraded = true
			// Degraded verdicts are not cached; the classifier may recover.
			return result
		}

		result.Reasons = append(result.Reasons, classification.Violations...)
		result.Confidence = classification.Confidence
		switch classification.SuggestedAction {
		case "BLOCK":
			result.Verdict = chat.VerdictBlock
		case "WARN":
			if result.Verdict != chat.VerdictBlock {
				result.Verdict = chat.VerdictWarn
			}
		}
	}

	if p.cache != nil {
		p.cache.Set(ctx, key, result)
	}
	return result
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(text))))
	return hex.EncodeToString(sum[:])
}

// Apply performs a moderator action on a message. Only registered
// moderators may act, and a message can move out of Clean exactly once.
func (p *Pipeline) Apply(ctx context.Context, messageID, moderatorID string, action chat.ModerationAction, reason string) (*chat.ChatMessage, error) {
	if !p.moderators.IsModerator(moderatorID) {
		return nil, chat.ErrNotModerator
	}

	status, err := action.Status()
	if err != nil {
		return nil, err
	}

	msg, err := p.channel.ApplyModeration(ctx, messageID, chat.ModerationState{
		Status:      status,
		Reason:      reason,
		ModeratorID: moderatorID,
		At:          time.Now(),
	})
	if err != nil {
		return nil, err
	}

	metrics.ModerationActionsTotal.WithLabelValues(string(action)).Inc()
	log.Printf("Moderator %s applied %s to message %s", moderatorID, action, messageID)

	return msg, nil
}

// RenderFor applies the visibility rules for one viewer. The returned bool
// is false when the message must be omitted entirely for this viewer.
//
// Deleted messages show a placeholder to everyone. Hidden messages keep
// their real text for the author and for moderators and disappear for
// everyone else. Flagged messages read normally; the annotation is only
// visible to moderators.
func RenderFor(msg chat.ChatMessage, viewerID string, viewerIsModerator bool) (chat.ChatMessage, bool) {
	switch msg.Moderation.Status {
	case chat.StatusDeleted:
		msg.Text = DeletedPlaceholder
		msg.ImageURL = ""
		if !viewerIsModerator {
			msg.Moderation = chat.ModerationState{Status: chat.StatusDeleted}
		}
		return msg, true

	case chat.StatusHidden:
		if viewerIsModerator || msg.AuthorID == viewerID {
			return msg, true
		}
		return chat.ChatMessage{}, false

	case chat.StatusFlagged:
		if !viewerIsModerator {
			msg.Moderation = chat.ModerationState{Status: chat.StatusClean}
		}
		return msg, true

	default:
		return msg, true
	}
}

// RenderHistory applies RenderFor across a history slice, preserving order.
func RenderHistory(msgs []chat.ChatMessage, viewerID string, viewerIsModerator bool) []chat.ChatMessage {
	rendered := make([]chat.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		if m, ok := RenderFor(msg, viewerID, viewerIsModerator); ok {
			rendered = append(rendered, m)
		}
	}
	return rendered
}
