// Package pagetest provides a scripted page.Driver for tests.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Call is one recorded driver invocation
type Call struct {
	Method string
	Arg    string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Method
	}
	return c.Method + "(" + c.Arg + ")"
}

// Driver replays scripted extraction results and records every call.
// Extractions past the end of Pages repeat the last page.
type Driver struct {
	mu sync.Mutex

	Pages [][]types.PageRecord
	// Missing selectors make WaitForSelector and Click fail.
	Missing map[string]bool
	// Fail maps a method name to the error it returns.
	Fail map[string]error
	// OnCall runs after each call is recorded.
	OnCall func(Call)

	calls   []Call
	extract int
	cookies []*network.Cookie
	closed  bool
}

// New returns a Driver that extracts pages in order
func New(pages ...[]types.PageRecord) *Driver {
	return &Driver{Pages: pages, Missing: map[string]bool{}, Fail: map[string]error{}}
}

func (d *Driver) record(method, arg string) error {
	d.mu.Lock()
	c := Call{Method: method, Arg: arg}
	d.calls = append(d.calls, c)
	err := d.Fail[method]
	hook := d.OnCall
	d.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

// Calls returns the recorded calls
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many times method was called
func (d *Driver) Count(method string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Typed returns the concatenation of all TypeText arguments
func (d *Driver) Typed() string {
	var sb strings.Builder
	for _, c := range d.Calls() {
		if c.Method == "TypeText" {
			sb.WriteString(c.Arg)
		}
	}
	return sb.String()
}

// Closed reports whether Close was called
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) Navigate(_ context.Context, url string, _ time.Duration) error {
	return d.record("Navigate", url)
}

func (d *Driver) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	if err := d.record("WaitForSelector", selector); err != nil {
		return err
	}
	return d.missing("wait", selector)
}

func (d *Driver) Click(_ context.Context, selector string, _ time.Duration) error {
	if err := d.record("Click", selector); err != nil {
		return err
	}
	return d.missing("click", selector)
}

func (d *Driver) missing(action, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Missing[selector] {
		return &types.PageError{Action: action, Selector: selector, Err: context.DeadlineExceeded}
	}
	return nil
}

func (d *Driver) ExtractVisibleItems(context.Context) ([]types.PageRecord, error) {
	if err := d.record("ExtractVisibleItems", ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Pages) == 0 {
		return nil, nil
	}
	i := d.extract
	if i >= len(d.Pages) {
		i = len(d.Pages) - 1
	}
	d.extract++
	return append([]types.PageRecord(nil), d.Pages[i]...), nil
}

func (d *Driver) Scroll(_ context.Context, pixels int) error {
	return d.record("Scroll", fmt.Sprint(pixels))
}

func (d *Driver) PressKey(_ context.Context, key string) error {
	return d.record("PressKey", key)
}

func (d *Driver) TypeText(_ context.Context, text string) error {
	return d.record("TypeText", text)
}

func (d *Driver) Screenshot(_ context.Context, path string) error {
	return d.record("Screenshot", path)
}

func (d *Driver) SetCookies(_ context.Context, cookies []*network.Cookie) error {
	if err := d.record("SetCookies", fmt.Sprint(len(cookies))); err != nil {
		return err
	}
	d.mu.Lock()
	d.cookies = cookies
	d.mu.Unlock()
	return nil
}

func (d *Driver) Cookies(context.Context) ([]*network.Cookie, error) {
	if err := d.record("Cookies", ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cookies, nil
}

func (d *Driver) Detach(_ context.Context, url string) error {
	return d.record("Detach", url)
}

func (d *Driver) Reset(context.Context) error {
	return d.record("Reset", "")
}

func (d *Driver) Close() error {
	err := d.record("Close", "")
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return err
}
