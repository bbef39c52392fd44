package respond

import (
	"fmt"
	"strings"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// BuildPrompt constructs the prompt for replying to a single item
func BuildPrompt(item types.CollectedItem, persona string, maxChars int) string {
	var sb strings.Builder

	sb.WriteString("You are writing a short reply to a social media post.\n\n")

	if persona != "" {
		sb.WriteString("## Voice\n")
		sb.WriteString(persona)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Post\n")
	sb.WriteString(fmt.Sprintf("Author: @%s\n", item.Author))
	sb.WriteString(fmt.Sprintf("Content: %s\n", item.Text))
	sb.WriteString(fmt.Sprintf("Engagement: %d likes, %d reposts, %d replies\n\n", item.Likes, item.Reshares, item.Replies))

	sb.WriteString("## Task\n\n")
	sb.WriteString(fmt.Sprintf("Write one reply of at most %d characters. ", maxChars))
	sb.WriteString("Plain text only: no hashtags, no quotation marks around the reply.\n")
	sb.WriteString(fmt.Sprintf("If the post is not something you should reply to, respond with %s and nothing else.\n", DeclineMarker))

	return sb.String()
}
