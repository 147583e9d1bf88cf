// internal/domain/identity/session.go

package identity

import "strings"

// Session is the single authoritative identity context passed explicitly to
// every component that needs it. Authentication happens outside the engine;
// the engine trusts the user ID and display name as given.
type Session struct {
	UserID      string
	DisplayName string
	Moderator   bool
}

// Anonymous reports whether the session carries no authenticated user.
func (s Session) Anonymous() bool {
	return s.UserID == ""
}

// ModeratorList is a configured set of moderator user IDs, matched
// case-insensitively.
type ModeratorList struct {
	ids map[string]bool
}

// NewModeratorList builds a registry from configured moderator IDs.
func NewModeratorList(ids []string) *ModeratorList {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			m[id] = true
		}
	}
	return &ModeratorList{ids: m}
}

// IsModerator reports whether the user ID is on the moderator list.
func (l *ModeratorList) IsModerator(userID string) bool {
	return l.ids[strings.ToLower(strings.TrimSpace(userID))]
}
