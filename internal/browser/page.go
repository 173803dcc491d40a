package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/retail-session-scraper/internal/session"
)

// Page adapts a playwright page to session.Page.
type Page struct {
	page playwright.Page
}

// Goto loads url and waits for DOMContentLoaded. The bound is the smaller of
// timeout and the context deadline. Timeouts are reported as
// session.ErrNavigationTimeout.
func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	timeout, err := gotoTimeout(ctx, timeout, time.Now())
	if err != nil {
		return err
	}

	_, err = p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(milliseconds(timeout)),
	})
	if err != nil {
		return classify(err, timeout)
	}

	return nil
}

func (p *Page) URL() string {
	return p.page.URL()
}

func (p *Page) Title() (string, error) {
	return p.page.Title()
}

func (p *Page) Content() (string, error) {
	return p.page.Content()
}

func (p *Page) MoveMouse(x, y float64, steps int) error {
	return p.page.Mouse().Move(x, y, playwright.MouseMoveOptions{
		Steps: playwright.Int(steps),
	})
}

func (p *Page) Wheel(deltaX, deltaY float64) error {
	return p.page.Mouse().Wheel(deltaX, deltaY)
}

func (p *Page) Viewport() (int, int) {
	size := p.page.ViewportSize()
	if size == nil {
		return 0, 0
	}
	return size.Width, size.Height
}

func (p *Page) Click(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(milliseconds(timeout)),
	})
	if err != nil {
		return classify(err, timeout)
	}
	return nil
}

func (p *Page) Fill(selector, value string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(milliseconds(timeout)),
	})
	if err != nil {
		return classify(err, timeout)
	}
	return nil
}

func (p *Page) Press(selector, key string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(milliseconds(timeout)),
	})
	if err != nil {
		return classify(err, timeout)
	}
	return nil
}

// gotoTimeout bounds a navigation by timeout and the context deadline.
// playwright reads a zero timeout as unbounded, so less than a millisecond
// left is reported as a timeout instead of being truncated to zero.
func gotoTimeout(ctx context.Context, timeout time.Duration, now time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := deadline.Sub(now); remaining < timeout {
			timeout = remaining
		}
	}

	if timeout < time.Millisecond {
		return 0, fmt.Errorf("%w: %s left before navigation", session.ErrNavigationTimeout, timeout)
	}

	return timeout, nil
}

func classify(err error, timeout time.Duration) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w after %s: %v", session.ErrNavigationTimeout, timeout, err)
	}
	return err
}
