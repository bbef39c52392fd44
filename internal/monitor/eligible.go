package monitor

import "github.com/ibeckermayer/xwatch/internal/types"

// Eligible returns the items a reply may be sent to: not already replied
// to, not authored by own, and not already carrying a reply from own.
func Eligible(items []types.CollectedItem, replied map[string]bool, own string) []types.CollectedItem {
	own = types.NormalizeHandle(own)
	var out []types.CollectedItem
	for _, it := range items {
		switch {
		case replied[it.ID]:
		case it.HasExistingReply:
		case own != "" && types.NormalizeHandle(it.Author) == own:
		default:
			out = append(out, it)
		}
	}
	return out
}

// merge appends the items of src whose ids are not in dst
func merge(dst, src []types.CollectedItem) []types.CollectedItem {
	seen := make(map[string]bool, len(dst))
	for _, it := range dst {
		seen[it.ID] = true
	}
	for _, it := range src {
		if !seen[it.ID] {
			seen[it.ID] = true
			dst = append(dst, it)
		}
	}
	return dst
}
