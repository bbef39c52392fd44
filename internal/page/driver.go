// Package page defines the page automation surface used for fallback
// collection, timeline reading and posting replies.
package page

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Key names accepted by Driver.PressKey
const (
	KeyEnter     = "Enter"
	KeySpace     = "Space"
	KeyCtrlEnter = "Ctrl+Enter"
)

// Driver is a single automated browser tab. Every wait takes an explicit
// timeout; implementations return a *types.PageError on failure.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	ExtractVisibleItems(ctx context.Context) ([]types.PageRecord, error)
	Scroll(ctx context.Context, pixels int) error
	PressKey(ctx context.Context, key string) error
	TypeText(ctx context.Context, text string) error
	Screenshot(ctx context.Context, path string) error
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
	Cookies(ctx context.Context) ([]*network.Cookie, error)

	// Detach opens url in a background tab that stays open until Close.
	Detach(ctx context.Context, url string) error
	// Reset discards the current tab and opens a fresh one.
	Reset(ctx context.Context) error
	Close() error
}
