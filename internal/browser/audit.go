package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// FingerprintAuditURL reports what automation signals a browser leaks
const FingerprintAuditURL = "https://bot.sannysoft.com"

// OpenAudit opens url in a visible browser with the same options as the
// automated driver and keeps it open until done is closed or ctx ends.
func OpenAudit(ctx context.Context, url string, done <-chan struct{}) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(false)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
