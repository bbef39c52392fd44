// Package respond produces reply text for collected items.
package respond

import (
	"context"
	"strings"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// DeclineMarker prefixes a generated reply that must not be posted
const DeclineMarker = "🤖"

// Policy maps an item to reply text. An error or a placeholder response
// means the item is skipped.
type Policy interface {
	Generate(ctx context.Context, item types.CollectedItem) (string, error)
}

// PolicyFunc adapts a function to Policy
type PolicyFunc func(ctx context.Context, item types.CollectedItem) (string, error)

func (f PolicyFunc) Generate(ctx context.Context, item types.CollectedItem) (string, error) {
	return f(ctx, item)
}

// IsDecline reports whether text is empty or a placeholder
func IsDecline(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.HasPrefix(t, DeclineMarker)
}
