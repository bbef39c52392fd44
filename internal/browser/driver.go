package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/page"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// actionTimeout bounds actions that have no caller-provided timeout
const actionTimeout = 30 * time.Second

// Options configures a Driver
type Options struct {
	Headless  bool
	OwnHandle string
}

// Driver is a chromedp-backed page.Driver. It owns one browser process
// with a working tab plus any detached tabs.
type Driver struct {
	opts Options
	log  zerolog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
	detached  map[string]context.CancelFunc
}

var _ page.Driver = (*Driver)(nil)

// New launches a browser. ctx bounds the browser's lifetime.
func New(ctx context.Context, opts Options, log zerolog.Logger) (*Driver, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(opts.Headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	d := &Driver{
		opts:          opts,
		log:           log.With().Str("component", "browser").Logger(),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		detached:      make(map[string]context.CancelFunc),
	}
	d.tabCtx, d.tabCancel = openTab(browserCtx)
	if err := chromedp.Run(d.tabCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return d, nil
}

// openTab creates a tab context. The caller must Run it once without a
// deadline before deriving timeouts from it, or chromedp binds the tab's
// lifetime to the first deadline.
func openTab(browserCtx context.Context) (context.Context, context.CancelFunc) {
	return chromedp.NewContext(browserCtx)
}

func (d *Driver) tab() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tabCtx
}

// run executes actions on the working tab, bounded by timeout and ctx
func (d *Driver) run(ctx context.Context, action, selector string, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = actionTimeout
	}
	tctx, cancel := context.WithTimeout(d.tab(), timeout)
	defer cancel()

	// Tie the caller's cancellation to the tab-scoped context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tctx, actions...); err != nil {
		return &types.PageError{Action: action, Selector: selector, Err: err}
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	d.log.Debug().Str("url", url).Msg("navigate")
	return d.run(ctx, "navigate", "", timeout, chromedp.Navigate(url))
}

func (d *Driver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, "wait", selector, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *Driver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, "click", selector, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *Driver) ExtractVisibleItems(ctx context.Context) ([]types.PageRecord, error) {
	var records []types.PageRecord
	if err := d.run(ctx, "extract", page.TweetArticle, 0, chromedp.Evaluate(extractScript(d.opts.OwnHandle), &records)); err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Driver) Scroll(ctx context.Context, pixels int) error {
	return d.run(ctx, "scroll", "", 0, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, pixels), nil))
}

func (d *Driver) PressKey(ctx context.Context, key string) error {
	keys, ctrl, err := keyEventFor(key)
	if err != nil {
		return &types.PageError{Action: "press", Err: err}
	}
	var opts []chromedp.KeyOption
	if ctrl {
		opts = append(opts, chromedp.KeyModifiers(input.ModifierCtrl))
	}
	return d.run(ctx, "press "+key, "", 0, chromedp.KeyEvent(keys, opts...))
}

// keyEventFor maps page key names onto chromedp key strings
func keyEventFor(key string) (string, bool, error) {
	ctrl := false
	if rest, ok := strings.CutPrefix(key, "Ctrl+"); ok {
		ctrl = true
		key = rest
	}
	switch key {
	case page.KeyEnter:
		return kb.Enter, ctrl, nil
	case page.KeySpace:
		return " ", ctrl, nil
	}
	if len([]rune(key)) == 1 {
		return key, ctrl, nil
	}
	return "", false, fmt.Errorf("unsupported key %q", key)
}

func (d *Driver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, "type", "", 0, chromedp.KeyEvent(text))
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := d.run(ctx, "screenshot", "", 0, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func (d *Driver) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	return d.run(ctx, "set cookies", "", 0, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (d *Driver) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, "get cookies", "", 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}

// Detach opens url in a new tab that is left open until Close. Opening the
// same url twice keeps the first tab.
func (d *Driver) Detach(ctx context.Context, url string) error {
	d.mu.Lock()
	if _, ok := d.detached[url]; ok {
		d.mu.Unlock()
		return nil
	}
	tabCtx, cancel := openTab(d.browserCtx)
	d.detached[url] = cancel
	d.mu.Unlock()

	if err := chromedp.Run(tabCtx); err != nil {
		return &types.PageError{Action: "detach", Err: err}
	}

	nctx, ncancel := context.WithTimeout(tabCtx, actionTimeout)
	defer ncancel()
	stop := context.AfterFunc(ctx, ncancel)
	defer stop()
	if err := chromedp.Run(nctx, chromedp.Navigate(url)); err != nil {
		d.log.Warn().Err(err).Str("url", url).Msg("detached tab failed to load")
	}
	return nil
}

// Reset closes the working tab and opens a fresh one in the same browser,
// keeping cookies
func (d *Driver) Reset(ctx context.Context) error {
	tabCtx, cancel := openTab(d.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return &types.PageError{Action: "reset", Err: err}
	}
	d.mu.Lock()
	d.tabCancel()
	d.tabCtx, d.tabCancel = tabCtx, cancel
	d.mu.Unlock()
	d.log.Info().Msg("working tab reset")
	return d.run(ctx, "reset", "", 0, chromedp.Navigate("about:blank"))
}

// Close shuts down every tab and the browser process
func (d *Driver) Close() error {
	d.mu.Lock()
	for url, cancel := range d.detached {
		cancel()
		delete(d.detached, url)
	}
	d.tabCancel()
	d.mu.Unlock()

	err := chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	return err
}
