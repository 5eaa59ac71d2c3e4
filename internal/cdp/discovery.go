package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TargetTypePage is the CDP target type for browser pages.
const TargetTypePage = "page"

// pollInterval is how often Wait retries while Chrome starts.
const pollInterval = 100 * time.Millisecond

// errNoPages is returned by Wait when Chrome answers but has no page open.
var errNoPages = errors.New("no page targets")

// BrowserInfo is the /json/version response.
type BrowserInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DevTools talks to Chrome's HTTP debugging endpoints. It is used once at
// startup and at shutdown; everything in between runs over the websocket.
type DevTools struct {
	base   string
	client *http.Client
}

// NewDevTools returns a client for the debugging port on localhost.
func NewDevTools(port string) *DevTools {
	return &DevTools{
		base:   "http://localhost:" + port,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Version returns the browser's version info, including the websocket URL
// the allocator connects to.
func (d *DevTools) Version(ctx context.Context) (*BrowserInfo, error) {
	var info BrowserInfo
	if err := d.call(ctx, http.MethodGet, "/json/version", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Pages lists the tabs form tracking can attach to. DevTools windows and
// extension pages are left out.
func (d *DevTools) Pages(ctx context.Context) ([]*target.Info, error) {
	var targets []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := d.call(ctx, http.MethodGet, "/json/list", &targets); err != nil {
		return nil, err
	}

	var pages []*target.Info
	for _, t := range targets {
		if t.Type != TargetTypePage || !trackable(t.URL) {
			continue
		}
		pages = append(pages, &target.Info{
			TargetID: target.ID(t.ID),
			Type:     t.Type,
			Title:    t.Title,
			URL:      t.URL,
		})
	}
	return pages, nil
}

// Open opens rawURL in a new tab and returns the tab's target ID.
func (d *DevTools) Open(ctx context.Context, rawURL string) (target.ID, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := d.call(ctx, http.MethodPut, "/json/new?"+url.QueryEscape(rawURL), &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("open %s: empty target id", rawURL)
	}
	return target.ID(created.ID), nil
}

// Close closes the tab with the given target ID.
func (d *DevTools) Close(ctx context.Context, id target.ID) error {
	return d.call(ctx, http.MethodPut, "/json/close/"+string(id), nil)
}

// Wait blocks until Chrome answers and has at least one page open, or ctx
// is done.
func (d *DevTools) Wait(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// last keeps the most recent failure seen before ctx ended.
	var last error
	for {
		err := d.ready(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil {
			last = err
		}
		select {
		case <-ctx.Done():
			if last == nil {
				last = ctx.Err()
			}
			return fmt.Errorf("chrome not ready at %s: %w", d.base, last)
		case <-ticker.C:
		}
	}
}

func (d *DevTools) ready(ctx context.Context) error {
	if _, err := d.Version(ctx); err != nil {
		return err
	}
	pages, err := d.Pages(ctx)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errNoPages
	}
	return nil
}

// call sends one request and decodes a JSON response into out when out is
// not nil.
func (d *DevTools) call(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to chrome at %s: %w", d.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// trackable reports whether a page URL can hold forms worth tracking.
func trackable(u string) bool {
	return !strings.HasPrefix(u, "devtools://") && !strings.HasPrefix(u, "chrome-extension://")
}
