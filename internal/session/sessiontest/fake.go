// Package sessiontest provides an in-memory browser for exercising the
// session controller and the scraping operations without Chromium.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maltedev/retail-session-scraper/internal/session"
)

// Response is what the fake browser shows after navigating to a URL.
type Response struct {
	Title    string
	HTML     string
	FinalURL string
	// Err is returned from Goto instead of loading the page.
	Err error
}

// Timeout is a Response whose navigation exceeds its bound.
func Timeout() Response {
	return Response{Err: fmt.Errorf("fake goto: %w", session.ErrNavigationTimeout)}
}

// Launcher is a scripted session.Launcher. Routes map a URL to the
// responses returned by successive visits; the last response repeats.
type Launcher struct {
	mu sync.Mutex

	routes   map[string][]Response
	visits   map[string]int
	effects  map[string]Response
	failing  map[string]error
	launchFn func(n int) error

	launches int
	live     int
	maxLive  int
	actions  []string
}

func NewLauncher() *Launcher {
	return &Launcher{
		routes:  make(map[string][]Response),
		visits:  make(map[string]int),
		effects: make(map[string]Response),
		failing: make(map[string]error),
	}
}

// Route scripts the responses for url.
func (l *Launcher) Route(url string, responses ...Response) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[url] = responses
	return l
}

// OnClick makes a click on selector replace the current page with r.
func (l *Launcher) OnClick(selector string, r Response) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects[selector] = r
	return l
}

// FailSelector makes every interaction with selector fail.
func (l *Launcher) FailSelector(selector string, err error) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failing[selector] = err
	return l
}

// FailLaunch makes the n-th launch (1-based) fail with the returned error.
func (l *Launcher) FailLaunch(fn func(n int) error) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launchFn = fn
	return l
}

func (l *Launcher) Launch(ctx context.Context) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.launches + 1
	if l.launchFn != nil {
		if err := l.launchFn(n); err != nil {
			return nil, err
		}
	}

	l.launches = n
	l.live++
	if l.live > l.maxLive {
		l.maxLive = l.live
	}

	s := &fakeSession{id: fmt.Sprintf("fake-%d", n), launcher: l}
	s.page = &fakePage{launcher: l}
	return s, nil
}

// Launches is the number of sessions started.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Live is the number of sessions not yet closed.
func (l *Launcher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// MaxLive is the highest number of simultaneously open sessions.
func (l *Launcher) MaxLive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxLive
}

// Visits is how many times url was navigated to.
func (l *Launcher) Visits(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visits[url]
}

// Actions lists the page interactions in order, e.g. "click:#btn".
func (l *Launcher) Actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.actions...)
}

func (l *Launcher) next(url string) Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.visits[url]
	l.visits[url] = n + 1

	responses, ok := l.routes[url]
	if !ok || len(responses) == 0 {
		return Response{Title: "Shop", HTML: "<html><head><title>Shop</title></head><body></body></html>"}
	}
	if n >= len(responses) {
		n = len(responses) - 1
	}
	return responses[n]
}

func (l *Launcher) act(kind, selector string) (Response, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.actions = append(l.actions, kind+":"+selector)
	if err, ok := l.failing[selector]; ok {
		return Response{}, false, err
	}
	r, ok := l.effects[selector]
	return r, ok, nil
}

type fakeSession struct {
	id       string
	launcher *Launcher
	page     *fakePage
	closed   bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Page() session.Page { return s.page }

func (s *fakeSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.launcher.mu.Lock()
	s.launcher.live--
	s.launcher.mu.Unlock()
	return nil
}

type fakePage struct {
	launcher *Launcher
	url      string
	current  Response
}

func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := p.launcher.next(url)
	if r.Err != nil {
		return r.Err
	}

	p.url = url
	if r.FinalURL != "" {
		p.url = r.FinalURL
	}
	p.current = r
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Title() (string, error) { return p.current.Title, nil }

func (p *fakePage) Content() (string, error) { return p.current.HTML, nil }

func (p *fakePage) MoveMouse(x, y float64, steps int) error { return nil }

func (p *fakePage) Wheel(deltaX, deltaY float64) error { return nil }

func (p *fakePage) Viewport() (int, int) { return 1366, 768 }

func (p *fakePage) Click(selector string, timeout time.Duration) error {
	r, ok, err := p.launcher.act("click", selector)
	if err != nil {
		return err
	}
	if ok {
		p.current = r
		if r.FinalURL != "" {
			p.url = r.FinalURL
		}
	}
	return nil
}

func (p *fakePage) Fill(selector, value string, timeout time.Duration) error {
	_, _, err := p.launcher.act("fill", selector)
	return err
}

func (p *fakePage) Press(selector, key string, timeout time.Duration) error {
	_, _, err := p.launcher.act("press", selector)
	return err
}
