package types

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Seconds-since-epoch values are below this; milliseconds are above it.
const millisThreshold = 1e12

// SearchRecord is a raw item as returned by the structured query endpoint
type SearchRecord struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	Username     string  `json:"username"`
	Timestamp    float64 `json:"timestamp"`  // seconds or milliseconds, 0 when absent
	TimeParsed   string  `json:"timeParsed"` // RFC3339, used when Timestamp is absent
	Likes        int     `json:"likes"`
	Retweets     int     `json:"retweets"`
	Replies      int     `json:"replies"`
	PermanentURL string  `json:"permanentUrl"`
}

// Normalize validates the record and converts it into a CollectedItem
func (r SearchRecord) Normalize(source Source) (CollectedItem, error) {
	if strings.TrimSpace(r.ID) == "" {
		return CollectedItem{}, &ValidationError{Field: "id", Reason: "missing"}
	}
	ms, ok := NormalizeTimestamp(r.Timestamp)
	if !ok {
		ms, ok = parseTime(r.TimeParsed)
	}
	if !ok {
		return CollectedItem{}, &ValidationError{ItemID: r.ID, Field: "timestamp", Reason: "missing or invalid"}
	}
	item := CollectedItem{
		ID:           r.ID,
		Text:         r.Text,
		Author:       strings.TrimPrefix(r.Username, "@"),
		CreatedAt:    ms,
		PermanentURL: r.PermanentURL,
		Source:       source,
	}
	if item.PermanentURL == "" && item.Author != "" {
		item.PermanentURL = StatusURL(item.Author, item.ID)
	}
	return item.WithEngagement(r.Likes, r.Retweets, r.Replies), nil
}

// PageRecord is a raw item extracted from the rendered page
type PageRecord struct {
	ID               string `json:"id"`
	AuthorHandle     string `json:"authorHandle"`
	Content          string `json:"content"`
	Timestamp        string `json:"timestamp"` // datetime attribute of the <time> element
	Likes            string `json:"likes"`
	Retweets         string `json:"retweets"`
	Replies          string `json:"replies"`
	OriginalURL      string `json:"originalUrl"`
	HasExistingReply bool   `json:"hasExistingReply"`
}

// Normalize validates the record and converts it into a CollectedItem
func (r PageRecord) Normalize(source Source) (CollectedItem, error) {
	if strings.TrimSpace(r.ID) == "" {
		return CollectedItem{}, &ValidationError{Field: "id", Reason: "missing"}
	}
	ms, ok := parseTime(r.Timestamp)
	if !ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(r.Timestamp), 64); err == nil {
			ms, ok = NormalizeTimestamp(f)
		}
	}
	if !ok {
		return CollectedItem{}, &ValidationError{ItemID: r.ID, Field: "timestamp", Reason: "missing or invalid"}
	}
	item := CollectedItem{
		ID:               r.ID,
		Text:             r.Content,
		Author:           strings.TrimPrefix(r.AuthorHandle, "@"),
		CreatedAt:        ms,
		PermanentURL:     r.OriginalURL,
		HasExistingReply: r.HasExistingReply,
		Source:           source,
	}
	if item.PermanentURL == "" && item.Author != "" {
		item.PermanentURL = StatusURL(item.Author, item.ID)
	}
	return item.WithEngagement(ParseMetric(r.Likes), ParseMetric(r.Retweets), ParseMetric(r.Replies)), nil
}

// NormalizeTimestamp converts a seconds or milliseconds epoch value into
// milliseconds. Non-positive and non-finite values are rejected.
func NormalizeTimestamp(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	if v < millisThreshold {
		v *= 1000
	}
	return int64(v), true
}

func parseTime(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil || t.UnixMilli() <= 0 {
		return 0, false
	}
	return t.UnixMilli(), true
}

// ParseMetric converts abbreviated metric strings like "1.2K", "5.7M", or "423" to integers
func ParseMetric(s string) int {
	if s == "" {
		return 0
	}

	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")

	multiplier := 1.0
	if strings.HasSuffix(strings.ToUpper(s), "K") {
		multiplier = 1000
		s = s[:len(s)-1]
	} else if strings.HasSuffix(strings.ToUpper(s), "M") {
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0
	}

	return int(value * multiplier)
}
