// Package control drives a Chrome tab for form checks: navigating, filling
// and submitting forms, and running the probe's page diagnosis.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ajsharma/form_tail/internal/probe"
)

// DefaultTimeout bounds every controller operation.
const DefaultTimeout = 30 * time.Second

// Controller drives one browser tab via CDP.
type Controller struct {
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	timeout       time.Duration
}

// NewController creates a controller connected to Chrome's debugging port.
// The first operation opens a new tab.
func NewController(port string) *Controller {
	allocatorCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(),
		"http://localhost:"+port)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	return &Controller{
		browserCtx:    browserCtx,
		allocCancel:   allocCancel,
		browserCancel: browserCancel,
		timeout:       DefaultTimeout,
	}
}

// SetTimeout sets the timeout for each operation.
func (c *Controller) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Timeout returns the per-operation timeout.
func (c *Controller) Timeout() time.Duration {
	return c.timeout
}

// Close releases the tab and the allocator.
func (c *Controller) Close() {
	c.browserCancel()
	c.allocCancel()
}

func (c *Controller) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(c.browserCtx, c.timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// Navigate loads url and waits for the body to be ready.
func (c *Controller) Navigate(url string) error {
	return c.run(
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click clicks the first element matching selector.
func (c *Controller) Click(selector string) error {
	return c.run(
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Fill replaces the value of a form field.
func (c *Controller) Fill(selector, text string) error {
	return c.run(
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Focus focuses a form field, which the tracker counts as an interaction.
func (c *Controller) Focus(selector string) error {
	return c.run(chromedp.Focus(selector, chromedp.ByQuery))
}

// Submit submits the form containing selector.
func (c *Controller) Submit(selector string) error {
	return c.run(chromedp.Submit(selector, chromedp.ByQuery))
}

// WaitVisible waits until selector is visible, e.g. a success message.
func (c *Controller) WaitVisible(selector string) error {
	return c.run(chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Evaluate runs js and returns its result encoded as JSON.
func (c *Controller) Evaluate(js string) (string, error) {
	var result interface{}
	if err := c.run(chromedp.Evaluate(js, &result)); err != nil {
		return "", err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Screenshot captures the viewport as PNG bytes.
func (c *Controller) Screenshot() ([]byte, error) {
	var buf []byte
	if err := c.run(chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetTitle returns the current page title.
func (c *Controller) GetTitle() (string, error) {
	var title string
	if err := c.run(chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// GetURL returns the current page URL.
func (c *Controller) GetURL() (string, error) {
	var url string
	if err := c.run(chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Reload reloads the current page.
func (c *Controller) Reload() error {
	return c.run(chromedp.Reload())
}

// Diagnose inspects the forms on the current page, or on url when it is
// not empty, and reports which success indicators are visible.
func (c *Controller) Diagnose(url string) (*probe.Report, error) {
	var actions []chromedp.Action
	if url != "" {
		actions = append(actions,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}

	var raw json.RawMessage
	actions = append(actions, chromedp.Evaluate(probe.DiagnoseScript(), &raw))
	if err := c.run(actions...); err != nil {
		return nil, fmt.Errorf("diagnose: %w", err)
	}
	return probe.ParseReport(raw)
}
