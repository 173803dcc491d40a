// Package session owns the browser identity used to reach the target shop and
// mediates every navigation through the warm-up / block-detection protocol.
package session

import (
	"context"
	"time"
)

// Page is the slice of a browser tab the controller and the scraping
// operations need. Implementations must report navigation timeouts by
// wrapping ErrNavigationTimeout.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	URL() string
	Title() (string, error)
	Content() (string, error)

	MoveMouse(x, y float64, steps int) error
	Wheel(deltaX, deltaY float64) error
	Viewport() (width, height int)

	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Press(selector, key string, timeout time.Duration) error
}

// Session is one browsing identity: a browser process, a context holding
// cookies and fingerprint settings, and a single active page.
type Session interface {
	ID() string
	Page() Page
	Close() error
}

// Launcher spawns sessions. Each call must start a new browser identity.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// NavigationResult describes where a navigation ended up.
type NavigationResult struct {
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`
	Blocked  bool   `json:"blocked"`
}

// State is the controller's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateWarming
	StateReady
	StateNavigating
	StateBlockDetected
	StateRecovering
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateNavigating:
		return "navigating"
	case StateBlockDetected:
		return "block_detected"
	case StateRecovering:
		return "recovering"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Policy selects how long a session lives.
type Policy string

const (
	// PolicyPersistent keeps one session across operations and re-warms it
	// once the freshness window has passed.
	PolicyPersistent Policy = "persistent"
	// PolicyPerOperation launches and warms a new session for every
	// operation and releases it when the operation returns.
	PolicyPerOperation Policy = "per-operation"
)

// ParsePolicy accepts the config spellings of a policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "persistent", "long-lived", "":
		return PolicyPersistent, true
	case "per-operation", "fresh":
		return PolicyPerOperation, true
	default:
		return "", false
	}
}
