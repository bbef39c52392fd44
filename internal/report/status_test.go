package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/store"
)

func TestRenderIncludesCounters(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	out := Render(Status{
		State: "SEARCHING",
		Stats: stats.Snapshot{
			StartedAt:      start,
			Total:          42,
			ItemsPerMinute: 4.2,
			RateLimitHits:  3,
			FallbackUsed:   true,
			FallbackCount:  7,
			CurrentDelay:   90 * time.Second,
			Oldest:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			Newest:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
		Now: start.Add(10 * time.Minute),
	})

	assert.Contains(t, out, "SEARCHING")
	assert.Contains(t, out, "42 (4.2/min)")
	assert.Contains(t, out, "7 items")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "10m0s")
	assert.Contains(t, out, "2024-01-01 00:00")
	assert.NotContains(t, out, "logged errors")
}

func TestRenderSummarizesErrors(t *testing.T) {
	out := Render(Status{
		State: "RECOVERING",
		Errors: []store.ErrorEntry{
			{OccurredAt: time.Now(), Context: "RECOVERING", Message: strings.Repeat("x", 200)},
			{OccurredAt: time.Now(), Context: "SEARCHING", Message: "older"},
		},
		Now: time.Now(),
	})
	assert.Contains(t, out, "2 logged errors")
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, "older")
}

func TestRenderWithoutItems(t *testing.T) {
	out := Render(Status{State: "SEARCHING", Now: time.Now(), Stats: stats.Snapshot{StartedAt: time.Now()}})
	assert.Contains(t, out, "unused")
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Status{State: "RESPONDING", Now: time.Now()}))
	assert.Contains(t, buf.String(), "RESPONDING")
}
