// Package report renders run status for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	valueStyle = lipgloss.NewStyle().Padding(0, 1)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Padding(0, 1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Status is what one status report shows
type Status struct {
	State  string
	Stats  stats.Snapshot
	Errors []store.ErrorEntry // most recent first
	Now    time.Time
}

// Render formats s as a framed key/value table
func Render(s Status) string {
	rows := [][2]string{
		{"state", s.State},
		{"uptime", s.Now.Sub(s.Stats.StartedAt).Truncate(time.Second).String()},
		{"collected", fmt.Sprintf("%d (%.1f/min)", s.Stats.Total, s.Stats.ItemsPerMinute)},
		{"requests", fmt.Sprint(s.Stats.Requests)},
		{"rate limits", fmt.Sprint(s.Stats.RateLimitHits)},
		{"retries", fmt.Sprint(s.Stats.Retries)},
		{"fallback", fallback(s.Stats)},
		{"dropped", fmt.Sprint(s.Stats.Dropped)},
		{"replies", fmt.Sprint(s.Stats.Replies)},
		{"backoff", s.Stats.CurrentDelay.String()},
		{"range", dateRange(s.Stats)},
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("xwatch status"))
	sb.WriteString("\n")
	for _, r := range rows {
		style := valueStyle
		if (r[0] == "rate limits" && s.Stats.RateLimitHits > 0) || (r[0] == "backoff" && s.Stats.CurrentDelay > 0) {
			style = warnStyle
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			keyStyle.Width(width+2).Render(r[0]),
			style.Render(r[1]),
		))
		sb.WriteString("\n")
	}

	if len(s.Errors) > 0 {
		last := s.Errors[0]
		sb.WriteString(errStyle.Render(fmt.Sprintf("%d logged errors, last at %s in %s: %s",
			len(s.Errors), last.OccurredAt.Format(time.DateTime), last.Context, truncate(last.Message, 80))))
		sb.WriteString("\n")
	}

	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// Write renders s to w
func Write(w io.Writer, s Status) error {
	_, err := fmt.Fprintln(w, Render(s))
	return err
}

func fallback(s stats.Snapshot) string {
	if !s.FallbackUsed {
		return "unused"
	}
	return fmt.Sprintf("%d items", s.FallbackCount)
}

func dateRange(s stats.Snapshot) string {
	if s.Oldest == 0 {
		return "-"
	}
	const layout = "2006-01-02 15:04"
	return time.UnixMilli(s.Oldest).UTC().Format(layout) + " → " + time.UnixMilli(s.Newest).UTC().Format(layout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
