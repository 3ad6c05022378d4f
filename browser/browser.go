// Package browser provides the browser driver used by automation backends.
package browser

import (
	"context"
	"errors"
	"time"
)

// Action represents a browser action type.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionType       Action = "type"
	ActionScroll     Action = "scroll"
	ActionScreenshot Action = "screenshot"
	ActionWait       Action = "wait"
)

// ErrClosed is returned by page operations after the page or its browser was closed.
var ErrClosed = errors.New("browser: closed")

// Config configures a browser launch.
type Config struct {
	Headless       bool          `yaml:"headless" env:"HEADLESS" json:"headless"`
	SlowMo         time.Duration `yaml:"slow_mo" env:"SLOW_MO" json:"slow_mo"`
	LaunchTimeout  time.Duration `yaml:"launch_timeout" env:"LAUNCH_TIMEOUT" json:"launch_timeout"`
	ViewportWidth  int           `yaml:"viewport_width" env:"VIEWPORT_WIDTH" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" env:"VIEWPORT_HEIGHT" json:"viewport_height"`
	ExecPath       string        `yaml:"exec_path" env:"EXEC_PATH" json:"exec_path,omitempty"`
	UserAgent      string        `yaml:"user_agent" env:"USER_AGENT" json:"user_agent,omitempty"`
	ProxyURL       string        `yaml:"proxy_url" env:"PROXY_URL" json:"proxy_url,omitempty"`
}

// DefaultConfig returns a headed browser with a 1280x720 viewport and 50ms slow motion.
func DefaultConfig() Config {
	return Config{
		Headless:       false,
		SlowMo:         50 * time.Millisecond,
		LaunchTimeout:  30 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context, cfg Config) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	// NewPage opens a new tab.
	NewPage(ctx context.Context) (Page, error)
	// Close terminates the browser process and every page it owns.
	Close() error
}

// Page is a single browser tab. Deadlines on ctx bound each operation.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Screenshot returns PNG bytes of the viewport, or of the whole document when fullPage is set.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// Content returns the serialized outer HTML of the document.
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, deltaY int) error
	Close() error
}
