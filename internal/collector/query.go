// Package collector gathers keyword-matching items through the structured
// query gateway, falling back to page automation when it is unavailable.
package collector

import (
	"net/url"
	"strings"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Query describes what to collect
type Query struct {
	Keywords []string
	// Exclude lists accounts whose posts are filtered out by the platform.
	Exclude []string
	// Own is the operating account, always excluded.
	Own string
}

// String renders the platform search expression, for example
// `(golang OR chromedp) -from:me -from:bot`
func (q Query) String() string {
	var parts []string
	var terms []string
	for _, k := range q.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + k + `"`
		}
		terms = append(terms, k)
	}
	if len(terms) > 0 {
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	seen := map[string]bool{}
	for _, h := range append([]string{q.Own}, q.Exclude...) {
		h = types.NormalizeHandle(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		parts = append(parts, "-from:"+h)
	}
	return strings.Join(parts, " ")
}

// SearchURL is the live search page for the query
func (q Query) SearchURL() string {
	return "https://x.com/search?q=" + url.QueryEscape(q.String()) + "&src=typed_query&f=live"
}

// Matches reports whether text contains any keyword, ignoring case. A
// query without keywords matches everything.
func (q Query) Matches(text string) bool {
	if len(q.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range q.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
