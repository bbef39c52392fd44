package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// InteractiveLogin opens a visible browser on the login page and waits
// for the operator to sign in by hand. It returns the session cookies.
func InteractiveLogin(ctx context.Context, timeout time.Duration) ([]*network.Cookie, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(false)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate("https://x.com/login")); err != nil {
		return nil, fmt.Errorf("failed to navigate to login page: %w", err)
	}

	if err := waitForLogin(browserCtx, timeout); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract cookies: %w", err)
	}
	return cookies, nil
}

// waitForLogin polls until the page reaches the home timeline with an
// auth_token cookie set
func waitForLogin(ctx context.Context, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !isHomeURL(url) {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == "auth_token" && c.Value != "" {
					return nil
				}
			}
		}
	}
}

func isHomeURL(url string) bool {
	return url == "https://x.com/home" || url == "https://twitter.com/home"
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}
