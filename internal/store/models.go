package store

import (
	"time"

	"github.com/ibeckermayer/xwatch/internal/stats"
)

// ErrorEntry is one fatal-error record
type ErrorEntry struct {
	ID         int64          `json:"id"`
	OccurredAt time.Time      `json:"occurred_at"`
	RunID      string         `json:"run_id"`
	Context    string         `json:"context"`
	Message    string         `json:"message"`
	Stats      stats.Snapshot `json:"stats"`
}

// Reply outcomes
const (
	OutcomePosted   = "posted"
	OutcomeDeclined = "declined"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// ReplyRecord is a reply decision for one item
type ReplyRecord struct {
	ItemID     string    `json:"item_id"`
	Text       string    `json:"text"`
	Outcome    string    `json:"outcome"`
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LLMExchange represents a prompt/response pair kept for debugging
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	ItemID    string    `json:"item_id"`
	Provider  string    `json:"provider"` // e.g. "anthropic"
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}
