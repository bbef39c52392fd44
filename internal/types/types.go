package types

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies which collection path produced an item
type Source string

const (
	SourceSearch   Source = "search"
	SourceTimeline Source = "timeline"
)

// CollectedItem is a normalized post. It is a value type: a changed
// engagement count produces a new value rather than mutating an old one.
type CollectedItem struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Author           string `json:"author"`
	CreatedAt        int64  `json:"created_at"` // epoch milliseconds
	Likes            int    `json:"likes"`
	Reshares         int    `json:"reshares"`
	Replies          int    `json:"replies"`
	PermanentURL     string `json:"permanent_url"`
	HasExistingReply bool   `json:"has_existing_reply"`
	Source           Source `json:"source"`
}

// Time returns CreatedAt as a time.Time
func (i CollectedItem) Time() time.Time {
	return time.UnixMilli(i.CreatedAt)
}

// WithEngagement returns a copy of the item with updated counts
func (i CollectedItem) WithEngagement(likes, reshares, replies int) CollectedItem {
	i.Likes = nonNegative(likes)
	i.Reshares = nonNegative(reshares)
	i.Replies = nonNegative(replies)
	return i
}

// Credentials are the configured login identity
type Credentials struct {
	Username string
	Password string
	Email    string // recovery contact, used when the platform asks for a second identifier
}

// Handle returns the username without a leading @, lowercased
func (c Credentials) Handle() string {
	return NormalizeHandle(c.Username)
}

// NormalizeHandle lowercases a handle and strips any leading @
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// StatusURL builds the canonical permalink for a post
func StatusURL(author, id string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", strings.TrimPrefix(author, "@"), id)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
