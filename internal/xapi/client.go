// Package xapi is a client for the structured query gateway: a small HTTP
// service that exposes platform search and account endpoints as JSON.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ibeckermayer/xwatch/internal/metrics"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// SearchMode selects result ordering
type SearchMode string

const (
	ModeLatest SearchMode = "latest"
	ModeTop    SearchMode = "top"
)

// maximum records requested per page
const pageSize = 50

// Options configures a Client
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the gateway on behalf of one session
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	stats      *stats.Collection
	log        zerolog.Logger

	mu      sync.Mutex
	cookies []*network.Cookie
}

// New creates a client for the gateway at opts.BaseURL
func New(opts Options, st *stats.Collection, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url %q: %w", opts.BaseURL, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = stats.New(time.Now())
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: opts.Timeout, Jar: jar},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		stats:      st,
		log:        log.With().Str("component", "xapi").Logger(),
	}, nil
}

// SetCookies replaces the session cookies sent with every request
func (c *Client) SetCookies(cookies []*network.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = cookies
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		hc = append(hc, toHTTPCookie(ck))
	}
	c.httpClient.Jar.SetCookies(c.baseURL, hc)
}

// Cookies returns the current session cookies, including any the
// gateway issued
func (c *Client) Cookies() []*network.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	byName := make(map[string]*network.Cookie, len(c.cookies))
	order := make([]string, 0, len(c.cookies))
	for _, ck := range c.cookies {
		if _, ok := byName[ck.Name]; !ok {
			order = append(order, ck.Name)
		}
		byName[ck.Name] = ck
	}
	for _, hc := range c.httpClient.Jar.Cookies(c.baseURL) {
		if prev, ok := byName[hc.Name]; ok {
			cp := *prev
			cp.Value = hc.Value
			byName[hc.Name] = &cp
			continue
		}
		order = append(order, hc.Name)
		byName[hc.Name] = fromHTTPCookie(hc, c.baseURL.Hostname())
	}
	out := make([]*network.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// IsAuthenticated performs the lightweight verification call
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, "verify", http.MethodGet, "/account/verify", nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, statusError("verify", resp)
	}
	var body struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	return body.Authenticated, nil
}

// Login authenticates with the configured identity. Cookies issued by the
// gateway are kept in the client's jar.
func (c *Client) Login(ctx context.Context, creds types.Credentials) error {
	payload, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
		"email":    creds.Email,
	})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "login", http.MethodPost, "/account/login", nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError("login", resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf := c.cookieValue("ct0"); csrf != "" {
		req.Header.Set("X-Csrf-Token", csrf)
	}

	c.stats.RecordRequest()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return nil, &types.CollectionError{Op: op, Err: err}
	}
	metrics.RequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("gateway request")
	return resp, nil
}

func (c *Client) cookieValue(name string) string {
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// statusError converts a failed response into a CollectionError, carrying
// the rate-limit signal and Retry-After hint when present
func statusError(op string, resp *http.Response) error {
	ce := &types.CollectionError{Op: op, Err: fmt.Errorf("gateway status %d", resp.StatusCode)}
	if resp.StatusCode == http.StatusTooManyRequests {
		ce.RateLimited = true
		ce.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return ce
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// toHTTPCookie maps a browser cookie onto the gateway host. Secure and
// HttpOnly are dropped since the jar only feeds the gateway transport.
func toHTTPCookie(c *network.Cookie) *http.Cookie {
	hc := &http.Cookie{
		Name:  c.Name,
		Value: c.Value,
		Path:  "/",
	}
	if c.Expires > 0 {
		hc.Expires = time.Unix(int64(c.Expires), 0)
	}
	return hc
}

func fromHTTPCookie(hc *http.Cookie, domain string) *network.Cookie {
	c := &network.Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   domain,
		Path:     "/",
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
	if !hc.Expires.IsZero() {
		c.Expires = float64(hc.Expires.Unix())
	}
	return c
}
